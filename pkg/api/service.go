package api

import (
	"context"

	"harscript/internal/config"
	"harscript/internal/logger"
	"harscript/internal/service"
	"harscript/internal/storage"
	"harscript/pkg/rulespec"
)

// GenerateRequest 生成请求
type GenerateRequest = service.GenerateRequest

// GenerateResult 生成结果
type GenerateResult = service.GenerateResult

// RunRecord 运行记录
type RunRecord = storage.Run

// Service 服务接口
type Service interface {
	// Generate 由录制文件与蓝图生成脚本并写出到输出目录
	Generate(ctx context.Context, req GenerateRequest) (*GenerateResult, error)

	// Validate 加载并校验蓝图，返回按 profile 解析后的规则集
	Validate(path, profile string) (*rulespec.RuleSet, error)

	// Runs 按时间倒序列出运行记录，需要启用 sqlite
	Runs(ctx context.Context, limit int) ([]RunRecord, error)

	// Close 释放资源
	Close() error
}

// NewService 创建并返回服务接口实现，cfg 为空时使用默认配置
func NewService(cfg *config.Config, l logger.Logger) (Service, error) {
	return service.New(cfg, l)
}
