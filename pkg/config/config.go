// Package config 提供统一的配置加载与合并能力。
// 加载优先级：命令行显式参数 > 环境变量 > 配置文件 > 默认值。
package config

import (
	"fmt"
	"reflect"
	"strings"

	"github.com/go-viper/mapstructure/v2"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

var configPath string

// Load 加载配置文件并反序列化到 target。
// 配置文件路径来源：--config 参数 > CASTMILL_CONFIG 环境变量 > ./config.yaml。
func Load(target any) error {
	// 注册命令行参数
	if pflag.Lookup("config") == nil {
		pflag.StringVarP(&configPath, "config", "c", "config.yaml", "path to config file")
	}
	if !pflag.Parsed() {
		pflag.Parse()
	}

	v := viper.New()
	v.SetEnvPrefix("CASTMILL")
	v.AutomaticEnv()
	// 环境变量中的 "_" 映射为配置中的 "."，例如 CASTMILL_LOG_LEVEL -> log.level
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_", "-", "_"))

	v.SetConfigFile(configPath)
	if err := v.ReadInConfig(); err != nil {
		return fmt.Errorf("read config %q failed: %w", configPath, err)
	}

	if err := v.Unmarshal(target); err != nil {
		return fmt.Errorf("unmarshal config failed: %w", err)
	}

	return nil
}

// MergeConfig 将用户配置覆盖到默认配置上，返回合并结果。
// override 中的零值字段不会覆盖默认值，保证部分配置也能正常工作。
func MergeConfig[T any](def *T, override *T) (*T, error) {
	if def == nil {
		return nil, ErrNilConfig
	}
	if override == nil {
		return def, nil
	}

	merged := *def

	// 先将 override 摊平为 map，剔除零值字段，再解码回合并结果
	var raw map[string]any
	if err := mapstructure.Decode(override, &raw); err != nil {
		return nil, fmt.Errorf("decode override config failed: %w", err)
	}
	pruneZero(raw)

	decoder, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		Result:           &merged,
		WeaklyTypedInput: true,
	})
	if err != nil {
		return nil, fmt.Errorf("create merge decoder failed: %w", err)
	}
	if err := decoder.Decode(raw); err != nil {
		return nil, fmt.Errorf("merge config failed: %w", err)
	}

	return &merged, nil
}

// pruneZero 递归剔除 map 中的零值项。
func pruneZero(m map[string]any) {
	for k, v := range m {
		if v == nil {
			delete(m, k)
			continue
		}
		if sub, ok := v.(map[string]any); ok {
			pruneZero(sub)
			if len(sub) == 0 {
				delete(m, k)
			}
			continue
		}
		if reflect.ValueOf(v).IsZero() {
			delete(m, k)
		}
	}
}
