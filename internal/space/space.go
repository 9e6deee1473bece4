// Package space holds the schedule search-space definition: the directive
// table and the parameter table the scheduling backend chooses from. The
// built-in tables cover the common loop-optimization directives; deployments
// tune them through a YAML file.
package space

import (
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/jqzhao7/SUPERSONIC/internal/codec"
)

type Config struct {
	Directives []string `yaml:"directives"`
	Params     []int    `yaml:"params"`
}

// Space is immutable after construction; sessions share one instance.
type Space struct {
	directives []string
	params     []int
}

func Default() *Space {
	return &Space{
		directives: []string{"split", "tile", "reorder", "unroll", "vectorize", "parallel", "compute_at", "compute_root"},
		params:     []int{1, 2, 4, 8, 16, 32, 64, 128},
	}
}

func LoadFromEnv() (*Space, error) {
	path := strings.TrimSpace(os.Getenv("SUPERSONIC_SPACE_FILE"))
	if path == "" {
		return Default(), nil
	}
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read space file: %w", err)
	}
	var cfg Config
	if err := yaml.Unmarshal(b, &cfg); err != nil {
		return nil, fmt.Errorf("parse space file: %w", err)
	}
	return NewFromConfig(cfg)
}

func NewFromConfig(cfg Config) (*Space, error) {
	if len(cfg.Directives) == 0 {
		return nil, fmt.Errorf("space config: directives table is empty")
	}
	if len(cfg.Params) == 0 {
		return nil, fmt.Errorf("space config: params table is empty")
	}
	s := &Space{
		directives: make([]string, 0, len(cfg.Directives)),
		params:     make([]int, 0, len(cfg.Params)),
	}
	for _, d := range cfg.Directives {
		d = strings.TrimSpace(d)
		if d == "" {
			return nil, fmt.Errorf("space config: blank directive name")
		}
		s.directives = append(s.directives, d)
	}
	s.params = append(s.params, cfg.Params...)
	return s, nil
}

// Bounds fixes the codec dimensions for a program with maxStage stages.
func (s *Space) Bounds(maxStage int32) codec.Bounds {
	return codec.Bounds{
		MaxStage:     maxStage,
		MaxDirective: int32(len(s.directives)),
		MaxParam:     int32(len(s.params)),
	}
}

func (s *Space) Directive(i int32) string {
	return s.directives[i]
}

func (s *Space) Param(i int32) int {
	return s.params[i]
}

// Describe renders one decoded decision as a human-readable schedule line.
func (s *Space) Describe(d codec.Decision) string {
	return fmt.Sprintf("stage[%d].%s(%d)", d.Stage, s.directives[d.Directive], s.params[d.Param])
}
