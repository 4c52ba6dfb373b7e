package slo

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v3"
)

// SeedDocument is the on-disk seed file format for SLO definitions and
// suppression rules.
type SeedDocument struct {
	APIVersion       string     `yaml:"apiVersion"`
	Kind             string     `yaml:"kind"`
	SLOs             []SeedSLO  `yaml:"slos"`
	SuppressionRules []SeedRule `yaml:"suppressionRules"`
}

// SeedSLO is one SLO definition as it appears in a seed file. The
// measurement window is given either as windowMinutes or as a duration
// string like "30d".
type SeedSLO struct {
	Service       string  `yaml:"service"`
	Metric        string  `yaml:"metric"`
	TargetPercent float64 `yaml:"targetPercent"`
	WindowMinutes int     `yaml:"windowMinutes,omitempty"`
	Window        string  `yaml:"window,omitempty"`
	Description   string  `yaml:"description,omitempty"`
}

// Definition converts the seed entry to an SLODefinition, rejecting
// unknown metric kinds, out-of-range targets and malformed windows.
func (s SeedSLO) Definition() (SLODefinition, error) {
	kind := MetricKind(s.Metric)
	if !kind.Valid() {
		return SLODefinition{}, fmt.Errorf("unknown metric kind %q", s.Metric)
	}
	if s.TargetPercent <= 0 || s.TargetPercent > 100 {
		return SLODefinition{}, fmt.Errorf("targetPercent %.2f out of range (0, 100]", s.TargetPercent)
	}

	minutes := s.WindowMinutes
	if s.Window != "" {
		if s.WindowMinutes != 0 {
			return SLODefinition{}, fmt.Errorf("window and windowMinutes are mutually exclusive")
		}
		d, err := ParseDuration(s.Window)
		if err != nil {
			return SLODefinition{}, err
		}
		if d%time.Minute != 0 {
			return SLODefinition{}, fmt.Errorf("window %q must be a whole number of minutes", s.Window)
		}
		minutes = int(d / time.Minute)
	}
	if minutes <= 0 {
		return SLODefinition{}, fmt.Errorf("a positive windowMinutes or window is required")
	}

	return SLODefinition{
		Service:       s.Service,
		Metric:        kind,
		TargetPercent: s.TargetPercent,
		WindowMinutes: minutes,
		Description:   s.Description,
	}, nil
}

// SeedRule is one suppression rule as it appears in a seed file.
// Optional fields left empty match anything.
type SeedRule struct {
	Name        string `yaml:"name"`
	Description string `yaml:"description,omitempty"`
	Service     string `yaml:"service,omitempty"`
	Severity    string `yaml:"severity,omitempty"`
	StartTime   string `yaml:"startTime,omitempty"`
	EndTime     string `yaml:"endTime,omitempty"`
	DaysOfWeek  []int  `yaml:"daysOfWeek,omitempty"`
}

// SeedWithFile pairs a seed document with its source file path.
type SeedWithFile struct {
	Doc  *SeedDocument
	File string
}

// LoadFromDirectory discovers and loads all seed files from a directory.
func LoadFromDirectory(dirPath string) ([]SeedWithFile, []ValidationError) {
	var seeds []SeedWithFile
	var errors []ValidationError

	files, err := discoverYAMLFiles(dirPath)
	if err != nil {
		errors = append(errors, ValidationError{
			File:    dirPath,
			Message: fmt.Sprintf("failed to read directory: %v", err),
		})
		return nil, errors
	}

	for _, file := range files {
		doc, err := parseYAMLFile(file)
		if err != nil {
			errors = append(errors, ValidationError{
				File:    file,
				Message: fmt.Sprintf("failed to parse YAML: %v", err),
			})
			continue
		}
		seeds = append(seeds, SeedWithFile{
			Doc:  doc,
			File: file,
		})
	}

	return seeds, errors
}

// discoverYAMLFiles finds all *.yaml and *.yml files in a directory
func discoverYAMLFiles(dirPath string) ([]string, error) {
	var files []string

	err := filepath.Walk(dirPath, func(path string, info os.FileInfo, err error) error {
		if err != nil {
			return err
		}
		if info.IsDir() {
			return nil
		}
		ext := filepath.Ext(path)
		if ext == ".yaml" || ext == ".yml" {
			files = append(files, path)
		}
		return nil
	})

	return files, err
}

// parseYAMLFile parses a single YAML file into a SeedDocument
func parseYAMLFile(filePath string) (*SeedDocument, error) {
	data, err := os.ReadFile(filePath)
	if err != nil {
		return nil, err
	}

	var doc SeedDocument
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, err
	}

	return &doc, nil
}
