package service

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/patrickmn/go-cache"
)

// ScriptService 把Job的script解析成存在的文件的绝对路径。只缓存成功的结果
type ScriptService struct {
	baseDir string
	cache   *cache.Cache
}

func NewScriptService(statisticsService *StatisticsService) *ScriptService {
	ttl := statisticsService.Tunables().ScriptCacheTTL
	return &ScriptService{
		baseDir: statisticsService.Tunables().ScriptBaseDir,
		cache:   cache.New(ttl, 2*ttl),
	}
}

func (s *ScriptService) Resolve(script string) (string, error) {
	if script == "" {
		return "", errors.New("script not set")
	}
	if path, ok := s.cache.Get(script); ok {
		return path.(string), nil
	}

	path := script
	if !filepath.IsAbs(path) {
		baseDir := s.baseDir
		if baseDir == "" {
			var err error
			if baseDir, err = os.Getwd(); err != nil {
				return "", err
			}
		}
		path = filepath.Join(baseDir, path)
	}
	info, err := os.Stat(path)
	if err != nil {
		return "", fmt.Errorf("script %v not found: %w", script, err)
	}
	if info.IsDir() {
		return "", fmt.Errorf("script %v is a directory", script)
	}

	s.cache.SetDefault(script, path)
	return path, nil
}
