package config

import (
	"embed"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/ticketloop/programmator/internal/debug"
)

//go:embed defaults/prompts/*.md
var promptsFS embed.FS

// PhasedPromptFile is the prompt template file name looked up in each prompts/ directory.
const PhasedPromptFile = "phased.md"

// Prompts holds the loaded prompt templates. Each is a text/template string.
type Prompts struct {
	Phased string
	// PhasedSource names the file or "embedded" the template came from.
	PhasedSource string
}

// EmbeddedPrompts returns the built-in templates.
func EmbeddedPrompts() *Prompts {
	content, err := readEmbeddedPrompt(PhasedPromptFile)
	if err != nil {
		panic(err)
	}
	return &Prompts{Phased: content, PhasedSource: "embedded"}
}

// LoadPrompts loads the prompt templates with fallback chain: local → global → embedded.
// Either directory may be empty to skip it.
func LoadPrompts(globalDir, localDir string) (*Prompts, error) {
	for _, dir := range []string{localDir, globalDir} {
		if dir == "" {
			continue
		}
		path := filepath.Join(dir, "prompts", PhasedPromptFile)
		content, err := readPromptFile(path)
		if err != nil {
			if dir == localDir {
				debug.Logf("config: skipping local prompt %s: %v", path, err)
				continue
			}
			return nil, err
		}
		if content != "" {
			return &Prompts{Phased: content, PhasedSource: path}, nil
		}
	}
	return EmbeddedPrompts(), nil
}

// readPromptFile returns "" without error when the file does not exist.
func readPromptFile(path string) (string, error) {
	data, err := os.ReadFile(path) //nolint:gosec // path is constructed internally
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return "", nil
		}
		return "", fmt.Errorf("read prompt file %s: %w", path, err)
	}
	return normalizePrompt(string(data)), nil
}

func readEmbeddedPrompt(name string) (string, error) {
	data, err := promptsFS.ReadFile("defaults/prompts/" + name)
	if err != nil {
		return "", fmt.Errorf("read embedded prompt %s: %w", name, err)
	}
	return normalizePrompt(string(data)), nil
}

func normalizePrompt(content string) string {
	return strings.TrimSpace(strings.ReplaceAll(content, "\r\n", "\n"))
}
