package strategy

import (
	"bytes"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"kquant/internal/backtest"
	"kquant/internal/logger"

	"github.com/fsnotify/fsnotify"
	"github.com/santhosh-tekuri/jsonschema/v5"
	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"
)

// BuilderFunc 按参数构建一个策略实例。
type BuilderFunc func(params map[string]any) (backtest.Strategy, error)

// builders 为内置策略构造器，preset 通过 builder 字段引用。
var builders = map[string]BuilderFunc{
	"ma_crossover": NewMACrossover,
	"rsi_reversal": NewRSIReversal,
	"buy_hold":     NewBuyHold,
}

// Preset 描述一个带默认参数的策略预设。
type Preset struct {
	ID          string         `mapstructure:"id" yaml:"id"`
	Description string         `mapstructure:"description" yaml:"description"`
	Builder     string         `mapstructure:"builder" yaml:"builder"`
	Version     int            `mapstructure:"version" yaml:"version"`
	Defaults    map[string]any `mapstructure:"defaults" yaml:"defaults"`
	Schema      map[string]any `mapstructure:"schema" yaml:"schema"`

	schemaCompiled *jsonschema.Schema
}

// FileConfig 映射 presets 文件。
type FileConfig struct {
	Presets map[string]Preset `mapstructure:"presets" yaml:"presets"`
}

// Snapshot 公开的预设快照。
type Snapshot struct {
	Version  int64
	LoadedAt time.Time
	Presets  map[string]Preset
}

// Registry 管理策略预设，实现 backtest.StrategyFactory。
// 预设文件变更后自动重载，运行中的 run 不受影响（实例在 Create 时固化）。
type Registry struct {
	path string
	v    *viper.Viper

	mu       sync.RWMutex
	snapshot Snapshot
}

// NewRegistry 读取预设文件并监听更新。path 为空时返回只含内置策略的 registry。
func NewRegistry(path string) (*Registry, error) {
	r := &Registry{path: strings.TrimSpace(path)}
	if r.path == "" {
		r.snapshot = Snapshot{Version: 1, LoadedAt: time.Now(), Presets: map[string]Preset{}}
		return r, nil
	}
	v := viper.New()
	v.SetConfigFile(r.path)
	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("read strategy presets failed: %w", err)
	}
	r.v = v
	if err := r.reload(); err != nil {
		return nil, err
	}
	v.OnConfigChange(func(evt fsnotify.Event) {
		if err := r.reload(); err != nil {
			logger.Errorf("strategy presets reload failed: %v", err)
		}
	})
	v.WatchConfig()
	return r, nil
}

func (r *Registry) reload() error {
	cfg, err := readPresetFile(r.path)
	if err != nil {
		return err
	}
	presets := make(map[string]Preset, len(cfg.Presets))
	for name, p := range cfg.Presets {
		norm, err := normalizePreset(name, p)
		if err != nil {
			return err
		}
		presets[norm.ID] = norm
	}
	r.mu.Lock()
	r.snapshot = Snapshot{
		Version:  r.snapshot.Version + 1,
		LoadedAt: time.Now(),
		Presets:  presets,
	}
	r.mu.Unlock()
	logger.Infof("strategy registry loaded %d presets from %s", len(presets), filepath.Base(r.path))
	return nil
}

func normalizePreset(name string, p Preset) (Preset, error) {
	p.ID = strings.TrimSpace(p.ID)
	if p.ID == "" {
		p.ID = strings.TrimSpace(name)
	}
	if p.Version <= 0 {
		p.Version = 1
	}
	p.Builder = strings.TrimSpace(p.Builder)
	if _, ok := builders[p.Builder]; !ok {
		return Preset{}, fmt.Errorf("preset %s 引用了未知 builder: %s", p.ID, p.Builder)
	}
	if len(p.Schema) > 0 {
		compiled, err := compileSchema(p.Schema)
		if err != nil {
			return Preset{}, fmt.Errorf("preset %s schema 编译失败: %w", p.ID, err)
		}
		p.schemaCompiled = compiled
	}
	return p, nil
}

func compileSchema(data map[string]any) (*jsonschema.Schema, error) {
	raw, err := json.Marshal(data)
	if err != nil {
		return nil, err
	}
	compiler := jsonschema.NewCompiler()
	if err := compiler.AddResource("schema.json", strings.NewReader(string(raw))); err != nil {
		return nil, err
	}
	return compiler.Compile("schema.json")
}

func readPresetFile(path string) (FileConfig, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return FileConfig{}, fmt.Errorf("read strategy presets failed: %w", err)
	}
	var cfg FileConfig
	dec := yaml.NewDecoder(bytes.NewReader(raw))
	dec.KnownFields(true)
	if err := dec.Decode(&cfg); err != nil {
		return FileConfig{}, fmt.Errorf("parse strategy presets failed: %w", err)
	}
	return cfg, nil
}

// Snapshot 返回当前预设集。
func (r *Registry) PresetSnapshot() Snapshot {
	r.mu.RLock()
	defer r.mu.RUnlock()
	dst := Snapshot{
		Version:  r.snapshot.Version,
		LoadedAt: r.snapshot.LoadedAt,
		Presets:  make(map[string]Preset, len(r.snapshot.Presets)),
	}
	for id, p := range r.snapshot.Presets {
		dst.Presets[id] = p
	}
	return dst
}

// Names 返回可用的策略名：内置 builder 加预设 ID，升序。
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	seen := make(map[string]struct{}, len(builders)+len(r.snapshot.Presets))
	for name := range builders {
		seen[name] = struct{}{}
	}
	for id := range r.snapshot.Presets {
		seen[id] = struct{}{}
	}
	names := make([]string, 0, len(seen))
	for name := range seen {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Create 按名字构建策略实例。名字优先匹配预设（默认参数 + schema 校验），
// 未命中时回退到内置 builder。每次调用返回独立实例。
func (r *Registry) Create(name string, params map[string]any) (backtest.Strategy, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return nil, fmt.Errorf("strategy 名字不能为空")
	}

	r.mu.RLock()
	preset, isPreset := r.snapshot.Presets[name]
	r.mu.RUnlock()

	if isPreset {
		merged := make(map[string]any, len(preset.Defaults)+len(params))
		for k, v := range preset.Defaults {
			merged[k] = v
		}
		for k, v := range params {
			merged[k] = v
		}
		if preset.schemaCompiled != nil {
			if err := preset.schemaCompiled.Validate(normalizeForSchema(merged)); err != nil {
				return nil, fmt.Errorf("preset %s 参数校验失败: %w", name, err)
			}
		}
		return builders[preset.Builder](merged)
	}

	build, ok := builders[name]
	if !ok {
		return nil, fmt.Errorf("未知策略: %s", name)
	}
	return build(params)
}

// normalizeForSchema 把 map 里的整数统一成 float64，与 JSON 解码后的形态一致。
func normalizeForSchema(v any) any {
	switch val := v.(type) {
	case map[string]any:
		out := make(map[string]any, len(val))
		for k, child := range val {
			out[k] = normalizeForSchema(child)
		}
		return out
	case []any:
		out := make([]any, len(val))
		for i, child := range val {
			out[i] = normalizeForSchema(child)
		}
		return out
	case int:
		return float64(val)
	case int64:
		return float64(val)
	default:
		return val
	}
}
