package services

import (
	"os"
	"path/filepath"
	"sort"
	"strings"

	"authfuzz/pkg/attacks"
	"authfuzz/pkg/logger"
	"authfuzz/pkg/runner"
)

type TargetInfo struct {
	Name     string `json:"name"`
	Scenario string `json:"scenario,omitempty"`
	Steps    int    `json:"steps,omitempty"`
	Script   string `json:"script,omitempty"`
	File     string `json:"file,omitempty"`
}

type ConfigServiceMethods interface {
	Targets() []TargetInfo
	Strategies() []string
}

type configService struct {
	targetsDir string
	registry   *runner.Registry
	catalog    attacks.Catalog
	log        *logger.Logger
}

// NewConfigService lists what a scan can be started against. registry may
// hold generators that were registered without a scenario file.
func NewConfigService(targetsDir string, registry *runner.Registry, catalog attacks.Catalog) ConfigServiceMethods {
	return &configService{
		targetsDir: targetsDir,
		registry:   registry,
		catalog:    catalog,
		log:        logger.Default(),
	}
}

func (c *configService) Targets() []TargetInfo {
	byName := make(map[string]TargetInfo)
	if c.registry != nil {
		for _, name := range c.registry.Targets() {
			byName[name] = TargetInfo{Name: name}
		}
	}

	files, err := os.ReadDir(c.targetsDir)
	if err != nil && !os.IsNotExist(err) {
		c.log.WithError(err).WithField("dir", c.targetsDir).Error("Failed to read targets directory")
	}
	for _, file := range files {
		if file.IsDir() || !strings.HasSuffix(file.Name(), ".yaml") {
			continue
		}
		path := filepath.Join(c.targetsDir, file.Name())
		s, err := runner.LoadScenario(path)
		if err != nil {
			c.log.WithError(err).WithField("file", file.Name()).Error("Failed to parse target scenario")
			continue
		}
		name := strings.TrimSuffix(file.Name(), filepath.Ext(file.Name()))
		byName[name] = TargetInfo{
			Name:     name,
			Scenario: s.Name,
			Steps:    len(s.Steps),
			Script:   s.Script,
			File:     file.Name(),
		}
	}

	out := make([]TargetInfo, 0, len(byName))
	for _, t := range byName {
		out = append(out, t)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

func (c *configService) Strategies() []string {
	return c.catalog.Names()
}
