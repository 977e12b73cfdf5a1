package rules

import (
	"regexp"
	"sync"
)

var regexCache = &regexStore{m: map[string]*regexp.Regexp{}}

type regexStore struct {
	mu sync.RWMutex
	m  map[string]*regexp.Regexp
}

// Get 获取编译后的正则，首次使用时编译并缓存
func (s *regexStore) Get(pattern string) (*regexp.Regexp, error) {
	s.mu.RLock()
	re, ok := s.m[pattern]
	s.mu.RUnlock()
	if ok {
		return re, nil
	}
	re, err := regexp.Compile(pattern)
	if err != nil {
		return nil, err
	}
	s.mu.Lock()
	s.m[pattern] = re
	s.mu.Unlock()
	return re, nil
}

// Compile 导出的正则缓存入口
func Compile(pattern string) (*regexp.Regexp, error) {
	return regexCache.Get(pattern)
}
