package config

import (
	"errors"
	"fmt"
	"log"
	"os"
	"sync"

	"github.com/fsnotify/fsnotify"
	"github.com/spf13/viper"
)

const (
	AppTypeChat     = "chat"
	AppTypeWorkflow = "workflow"
)

// Tool описывает приложение шлюза, доступное пользователям.
// APIKey - имя переменной окружения с ключом, а не сам ключ.
type Tool struct {
	ID          string   `mapstructure:"id" json:"id"`
	Name        string   `mapstructure:"name" json:"name"`
	Description string   `mapstructure:"description" json:"description"`
	Type        string   `mapstructure:"type" json:"type"`
	APIKey      string   `mapstructure:"apikey" json:"-"`
	Category    string   `mapstructure:"category" json:"category"`
	Tags        []string `mapstructure:"tags" json:"tags,omitempty"`
	OutputType  string   `mapstructure:"output_type" json:"output_type"`
}

func DefaultTools() []Tool {
	return []Tool{
		{
			ID:          "interview",
			Name:        "AI面试官",
			Description: "AI面试官，帮助你进行面试准备和模拟面试",
			Type:        AppTypeChat,
			APIKey:      "VITE_DIFY_API_KEY_INTERVIEW",
			Category:    "问题",
			OutputType:  "text",
		},
		{
			ID:          "translator",
			Name:        "AI翻译",
			Description: "AI翻译，帮助你进行翻译",
			Type:        AppTypeChat,
			APIKey:      "VITE_DIFY_API_KEY_TRANSLATOR",
			Category:    "问题",
			OutputType:  "text",
		},
		{
			ID:          "text-to-image",
			Name:        "AI绘画大师",
			Description: "通过文字描述生成精美的艺术作品，支持多种艺术风格",
			Type:        AppTypeWorkflow,
			APIKey:      "VITE_DIFY_API_KEY_TEXT_TO_IMAGE",
			Category:    "image",
			Tags:        []string{"绘画", "艺术", "创作"},
			OutputType:  "image",
		},
		{
			ID:          "image-creative",
			Name:        "创意图像大师",
			Description: "通过文字描述生成精美的艺术作品，支持多种艺术风格",
			Type:        AppTypeWorkflow,
			APIKey:      "VITE_DIFY_API_KEY_IMAGE_CREATIVE",
			Category:    "image",
			Tags:        []string{"绘画", "艺术", "创作"},
			OutputType:  "image",
		},
	}
}

// Catalog - потокобезопасный список инструментов, который можно перечитать на лету.
type Catalog struct {
	mu    sync.RWMutex
	tools map[string]Tool
	order []string
}

func NewCatalog(tools []Tool) (*Catalog, error) {
	c := &Catalog{}
	if err := c.Replace(tools); err != nil {
		return nil, err
	}
	return c, nil
}

func (c *Catalog) Replace(tools []Tool) error {
	if err := validateTools(tools); err != nil {
		return err
	}
	index := make(map[string]Tool, len(tools))
	order := make([]string, 0, len(tools))
	for _, t := range tools {
		index[t.ID] = t
		order = append(order, t.ID)
	}

	c.mu.Lock()
	c.tools = index
	c.order = order
	c.mu.Unlock()
	return nil
}

func (c *Catalog) Get(id string) (Tool, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	t, ok := c.tools[id]
	return t, ok
}

func (c *Catalog) All() []Tool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	out := make([]Tool, 0, len(c.order))
	for _, id := range c.order {
		out = append(out, c.tools[id])
	}
	return out
}

// KeyName возвращает имя переменной с ключом из каталога, "" если инструмент не задан.
func (c *Catalog) KeyName(id string) string {
	t, ok := c.Get(id)
	if !ok {
		return ""
	}
	return t.APIKey
}

func validateTools(tools []Tool) error {
	seen := make(map[string]struct{}, len(tools))
	for i, t := range tools {
		if t.ID == "" {
			return fmt.Errorf("tool #%d: id is required", i)
		}
		if _, dup := seen[t.ID]; dup {
			return fmt.Errorf("tool %q: duplicate id", t.ID)
		}
		seen[t.ID] = struct{}{}
		if t.Type != AppTypeChat && t.Type != AppTypeWorkflow {
			return fmt.Errorf("tool %q: unsupported type %q", t.ID, t.Type)
		}
	}
	return nil
}

// LoadCatalog читает инструменты из YAML-файла и следит за его изменениями.
// Без файла используется встроенный список.
func LoadCatalog(path string) (*Catalog, error) {
	if path == "" {
		return NewCatalog(DefaultTools())
	}
	if _, err := os.Stat(path); errors.Is(err, os.ErrNotExist) {
		log.Printf("WARN: [Config] tools file %s not found, using built-in tools", path)
		return NewCatalog(DefaultTools())
	}

	v := viper.New()
	v.SetConfigFile(path)
	tools, err := readTools(v)
	if err != nil {
		return nil, err
	}
	catalog, err := NewCatalog(tools)
	if err != nil {
		return nil, err
	}

	v.OnConfigChange(func(e fsnotify.Event) {
		catalog.reload(v, e.Name)
	})
	v.WatchConfig()
	log.Printf("INFO: [Config] loaded %d tools from %s", len(tools), path)
	return catalog, nil
}

func (c *Catalog) reload(v *viper.Viper, name string) {
	tools, err := readTools(v)
	if err != nil {
		log.Printf("ERROR: [Config] failed to reload tools from %s: %v", name, err)
		return
	}
	if err := c.Replace(tools); err != nil {
		log.Printf("ERROR: [Config] rejected tools from %s: %v", name, err)
		return
	}
	log.Printf("INFO: [Config] reloaded %d tools from %s", len(tools), name)
}

func readTools(v *viper.Viper) ([]Tool, error) {
	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("failed to read tools file: %w", err)
	}
	var tools []Tool
	if err := v.UnmarshalKey("tools", &tools); err != nil {
		return nil, fmt.Errorf("failed to parse tools: %w", err)
	}
	return tools, nil
}
