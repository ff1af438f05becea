package promptdef

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"
)

// skip reports whether a directory entry name must be excluded — along
// with its entire subtree — from resource discovery.
func skip(name string) bool {
	return strings.HasPrefix(name, ".") || strings.HasPrefix(name, "_")
}

// decodeStrict YAML-decodes r into v, rejecting unknown fields.
func decodeStrict(r io.Reader, v any) error {
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(v); err != nil {
		return fmt.Errorf("structural decode: %w", err)
	}
	return nil
}

func decodeFileStrict(path string, v any) error {
	f, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("open %s: %w", path, err)
	}
	defer f.Close()
	return decodeStrict(f, v)
}

// LoadPrompts walks root discovering prompts. A directory becomes a prompt
// when it contains prompt.yaml; nested directories with their own
// prompt.yaml become child step prompts whose id is prefixed by all
// ancestor directory names, joined with "/". Hidden and underscore-prefixed
// entries (and their subtrees) are skipped entirely.
func LoadPrompts(root string) ([]Prompt, error) {
	var out []Prompt
	if err := walkPromptDir(root, "", &out); err != nil {
		return nil, err
	}
	return out, nil
}

func walkPromptDir(dir, idPrefix string, out *[]Prompt) error {
	entries, err := os.ReadDir(dir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return fmt.Errorf("read %s: %w", dir, err)
	}
	for _, e := range entries {
		if !e.IsDir() || skip(e.Name()) {
			continue
		}
		sub := filepath.Join(dir, e.Name())
		id := e.Name()
		if idPrefix != "" {
			id = idPrefix + "/" + e.Name()
		}
		entryFile := filepath.Join(sub, "prompt.yaml")
		if _, statErr := os.Stat(entryFile); statErr == nil {
			var p Prompt
			if err := decodeFileStrict(entryFile, &p); err != nil {
				return fmt.Errorf("prompt %s: %w", id, err)
			}
			if p.ID == "" {
				p.ID = id
			}
			*out = append(*out, p)
		}
		if err := walkPromptDir(sub, id, out); err != nil {
			return err
		}
	}
	return nil
}

// LoadGates discovers gates under root; each gate occupies its own
// directory containing gate.yaml and an optional guidance.md sidecar that
// fills Guidance when the config omits it.
func LoadGates(root string) ([]Gate, error) {
	var out []Gate
	err := walkSidecarResources(root, "gate.yaml", "guidance.md", func(id string, cfg []byte, guidance string) error {
		var g Gate
		if err := decodeStrict(strings.NewReader(string(cfg)), &g); err != nil {
			return fmt.Errorf("gate %s: %w", id, err)
		}
		if g.ID == "" {
			g.ID = id
		}
		if g.Guidance == "" {
			g.Guidance = guidance
		}
		out = append(out, g)
		return nil
	})
	return out, err
}

// LoadMethodologies discovers methodologies under root, same layout as gates.
func LoadMethodologies(root string) ([]Methodology, error) {
	var out []Methodology
	err := walkSidecarResources(root, "methodology.yaml", "guidance.md", func(id string, cfg []byte, guidance string) error {
		var m Methodology
		if err := decodeStrict(strings.NewReader(string(cfg)), &m); err != nil {
			return fmt.Errorf("methodology %s: %w", id, err)
		}
		if m.ID == "" {
			m.ID = id
		}
		if m.SystemPromptGuidance == "" {
			m.SystemPromptGuidance = guidance
		}
		out = append(out, m)
		return nil
	})
	return out, err
}

// LoadStyles discovers styles under root, same layout as gates.
func LoadStyles(root string) ([]Style, error) {
	var out []Style
	err := walkSidecarResources(root, "style.yaml", "guidance.md", func(id string, cfg []byte, guidance string) error {
		var s Style
		if err := decodeStrict(strings.NewReader(string(cfg)), &s); err != nil {
			return fmt.Errorf("style %s: %w", id, err)
		}
		if s.ID == "" {
			s.ID = id
		}
		if s.Guidance == "" {
			s.Guidance = guidance
		}
		out = append(out, s)
		return nil
	})
	return out, err
}

// walkSidecarResources visits each direct subdirectory of root that is not
// hidden/underscore-prefixed and contains configFile, loading configFile's
// raw bytes plus guidanceFile's text (if present) and invoking fn.
func walkSidecarResources(root, configFile, guidanceFile string, fn func(id string, cfg []byte, guidance string) error) error {
	entries, err := os.ReadDir(root)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return fmt.Errorf("read %s: %w", root, err)
	}
	for _, e := range entries {
		if !e.IsDir() || skip(e.Name()) {
			continue
		}
		dir := filepath.Join(root, e.Name())
		cfgPath := filepath.Join(dir, configFile)
		cfg, err := os.ReadFile(cfgPath)
		if err != nil {
			if os.IsNotExist(err) {
				continue
			}
			return fmt.Errorf("read %s: %w", cfgPath, err)
		}
		guidance := ""
		if b, err := os.ReadFile(filepath.Join(dir, guidanceFile)); err == nil {
			guidance = string(b)
		}
		if err := fn(e.Name(), cfg, guidance); err != nil {
			return err
		}
	}
	return nil
}
