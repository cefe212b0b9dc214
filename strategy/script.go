package strategy

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"
	"github.com/dreamerjackson/leadcrawler/selector"
	"github.com/robertkrimen/otto"
)

var errScriptTimeout = errors.New("detail script timed out")

// ScriptConfig declares a scripted strategy in the config file:
//
//	[[strategies]]
//	name = "luma"
//	domains = ["lu.ma"]
//	script = '({company: text(".host-name"), email: attr("a[href^=mailto]", "href")})'
type ScriptConfig struct {
	Name    string   `json:"name"`
	Domains []string `json:"domains"`
	Script  string   `json:"script"`
}

// ScriptStrategy runs a JavaScript expression against the detail page. The
// script sees text(sel), attr(sel, name), meta(name) and url, and must
// evaluate to an object whose properties become fields.
type ScriptStrategy struct {
	name    string
	source  string
	timeout time.Duration
}

func NewScriptStrategy(name, source string) (*ScriptStrategy, error) {
	if strings.TrimSpace(source) == "" {
		return nil, fmt.Errorf("strategy %s: empty script", name)
	}
	if _, err := otto.New().Compile(name+".js", source); err != nil {
		return nil, fmt.Errorf("strategy %s: %w", name, err)
	}
	return &ScriptStrategy{name: name, source: source, timeout: 2 * time.Second}, nil
}

// RegisterScripts compiles and registers every scripted strategy.
func (r *Registry) RegisterScripts(cfgs []ScriptConfig) error {
	for _, c := range cfgs {
		s, err := NewScriptStrategy(c.Name, c.Script)
		if err != nil {
			return err
		}
		if err := r.Register(s, domains(c.Domains...)...); err != nil {
			return err
		}
	}
	return nil
}

func (s *ScriptStrategy) Name() string {
	return s.name
}

func (s *ScriptStrategy) Listing() *Preset {
	return nil
}

func (s *ScriptStrategy) Detail(doc *goquery.Document, pageURL string) (out map[string]string, err error) {
	vm := otto.New()
	vm.Interrupt = make(chan func(), 1)

	timer := time.AfterFunc(s.timeout, func() {
		vm.Interrupt <- func() {
			panic(errScriptTimeout)
		}
	})
	defer timer.Stop()
	defer func() {
		if r := recover(); r != nil {
			if r == errScriptTimeout {
				err = fmt.Errorf("strategy %s: %w", s.name, errScriptTimeout)
				return
			}
			panic(r)
		}
	}()

	vm.Set("url", pageURL)
	vm.Set("text", func(sel string) string {
		return selector.Text(doc.Find(sel).First())
	})
	vm.Set("attr", func(sel, name string) string {
		v, _ := doc.Find(sel).First().Attr(name)
		return strings.TrimSpace(v)
	})
	vm.Set("meta", func(name string) string {
		m := doc.Find(fmt.Sprintf("meta[name=%q], meta[property=%q]", name, name)).First()
		v, _ := m.Attr("content")
		return strings.TrimSpace(v)
	})

	v, err := vm.Run(s.source)
	if err != nil {
		return nil, fmt.Errorf("strategy %s: %w", s.name, err)
	}
	if !v.IsObject() {
		return nil, fmt.Errorf("strategy %s: script must evaluate to an object, got %q", s.name, v.String())
	}

	exported, err := v.Export()
	if err != nil {
		return nil, fmt.Errorf("strategy %s: %w", s.name, err)
	}
	fields, ok := exported.(map[string]interface{})
	if !ok {
		return nil, fmt.Errorf("strategy %s: script must evaluate to a plain object", s.name)
	}

	out = make(map[string]string, len(fields))
	for k, raw := range fields {
		if raw == nil {
			continue
		}
		if val := normalizeValue(k, strings.TrimSpace(fmt.Sprint(raw)), pageURL); val != "" {
			out[k] = val
		}
	}

	return out, nil
}
