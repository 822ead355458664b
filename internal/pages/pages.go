package pages

import (
	"bytes"
	"context"
	"embed"
	"html/template"
	"io/fs"
	"net/http"
	"os"
	"path/filepath"
	"strconv"
	"sync"

	"github.com/antonio-alexander/go-blog-pages/internal"
	"github.com/antonio-alexander/go-blog-pages/internal/data"
	"github.com/antonio-alexander/go-blog-pages/internal/utilities"

	"github.com/Masterminds/sprig/v3"
	"github.com/pkg/errors"
	"github.com/tdewolff/minify/v2"
	minhtml "github.com/tdewolff/minify/v2/html"
)

const templateExtension string = ".html"

const mediaTypeHtml string = "text/html"

//go:embed templates/*.html
var embedded embed.FS

var (
	ErrTemplateNotFound = errors.New("template not found")
	ErrNotOpen          = errors.New("renderer not open")
)

const liveReloadScript string = `<script>(function(){` +
	`var p=location.protocol==="https:"?"wss://":"ws://";` +
	`var s=new WebSocket(p+location.host+"` + data.RouteReload + `");` +
	`s.onmessage=function(){location.reload();};` +
	`})();</script>`

type Renderer interface {
	Render(ctx context.Context, name string, v any) (*data.Page, error)
}

// Reloader is implemented by renderers that can push a reload to
// browsers; it's only functional in debug mode
type Reloader interface {
	ReloadHandler() http.HandlerFunc
}

type renderer struct {
	sync.RWMutex
	sync.WaitGroup
	config struct {
		directory string
		minify    bool
		debug     bool
	}
	ctx       context.Context
	cancel    context.CancelFunc
	templates *template.Template
	minifier  *minify.M
	reloader  *liveReloader
	listeners []func(ctx context.Context)
	utilities.Logger
}

func NewRenderer(parameters ...any) interface {
	internal.Configurer
	internal.Opener
	internal.Notifier
	Renderer
	Reloader
} {
	r := &renderer{
		Logger: utilities.NewLogger(),
	}
	for _, parameter := range parameters {
		switch p := parameter.(type) {
		case utilities.Logger:
			r.Logger = p
		}
	}
	return r
}

func (r *renderer) source() fs.FS {
	if r.config.directory != "" {
		return os.DirFS(r.config.directory)
	}
	source, _ := fs.Sub(embedded, "templates")
	return source
}

// parse reads every known template; a template missing from the source
// isn't fatal, it's reported when it's rendered
func (r *renderer) parse() (*template.Template, error) {
	source := r.source()
	templates := template.New("pages").Funcs(sprig.FuncMap())
	for _, name := range data.TemplateNames {
		bytes, err := fs.ReadFile(source, name+templateExtension)
		if err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				r.Error(r.ctx, "template %s not found in %q", name, r.config.directory)
				continue
			}
			return nil, errors.Wrapf(err, "while reading template %s", name)
		}
		if _, err := templates.New(name).Parse(string(bytes)); err != nil {
			return nil, errors.Wrapf(err, "while parsing template %s", name)
		}
	}
	return templates, nil
}

func (r *renderer) reload() {
	templates, err := r.parse()
	if err != nil {
		//KIM: keep serving the previous templates until the broken
		// template is fixed
		r.Error(r.ctx, "error while reloading templates: %s", err)
		return
	}
	r.Lock()
	r.templates = templates
	listeners := append([]func(context.Context){}, r.listeners...)
	r.Unlock()
	r.Info(r.ctx, "templates reloaded from %s", r.config.directory)
	for _, fx := range listeners {
		fx(r.ctx)
	}
}

func (r *renderer) Configure(envs map[string]string) error {
	if directory, ok := envs["PAGES_TEMPLATES_DIRECTORY"]; ok {
		r.config.directory = directory
	}
	if s, ok := envs["PAGES_MINIFY"]; ok {
		r.config.minify, _ = strconv.ParseBool(s)
	}
	if s, ok := envs["PAGES_DEBUG"]; ok {
		r.config.debug, _ = strconv.ParseBool(s)
	}
	if r.config.directory != "" {
		info, err := os.Stat(r.config.directory)
		if err != nil {
			return errors.Wrap(err, "while checking templates directory")
		}
		if !info.IsDir() {
			return errors.Errorf("templates directory %q is not a directory", r.config.directory)
		}
		r.config.directory = filepath.Clean(r.config.directory)
	}
	return nil
}

func (r *renderer) Open(ctx context.Context) error {
	r.ctx, r.cancel = context.WithCancel(context.Background())
	templates, err := r.parse()
	if err != nil {
		r.cancel()
		return err
	}
	r.Lock()
	r.templates = templates
	if r.config.minify {
		r.minifier = minify.New()
		r.minifier.AddFunc(mediaTypeHtml, minhtml.Minify)
	}
	if r.config.debug {
		r.reloader = newLiveReloader(r.Logger)
		r.listeners = append(r.listeners, func(context.Context) {
			r.reloader.Broadcast()
		})
	}
	r.Unlock()
	if r.config.debug && r.config.directory != "" {
		if err := r.launchWatcher(); err != nil {
			r.cancel()
			return err
		}
	}
	return nil
}

func (r *renderer) Close(ctx context.Context) error {
	if r.cancel != nil {
		r.cancel()
	}
	r.Wait()
	r.Lock()
	defer r.Unlock()

	if r.reloader != nil {
		r.reloader.Close()
	}
	return nil
}

// OnReload registers a function to be executed whenever the
// templates have been successfully reloaded
func (r *renderer) OnReload(fx func(ctx context.Context)) {
	r.Lock()
	defer r.Unlock()

	r.listeners = append(r.listeners, fx)
}

func (r *renderer) ReloadHandler() http.HandlerFunc {
	r.RLock()
	defer r.RUnlock()

	if r.reloader == nil {
		return nil
	}
	return r.reloader.Handler
}

func (r *renderer) Render(ctx context.Context, name string, v any) (*data.Page, error) {
	var buffer bytes.Buffer

	r.RLock()
	templates, minifier, debug := r.templates, r.minifier, r.config.debug
	r.RUnlock()
	if templates == nil {
		return nil, ErrNotOpen
	}
	tmpl := templates.Lookup(name)
	if tmpl == nil {
		return nil, errors.Wrapf(ErrTemplateNotFound, "%s", name)
	}
	if err := tmpl.Execute(&buffer, v); err != nil {
		return nil, errors.Wrapf(err, "while rendering template %s", name)
	}
	html := buffer.Bytes()
	if debug {
		html = injectScript(html, liveReloadScript)
	}
	if minifier != nil {
		minified, err := minifier.Bytes(mediaTypeHtml, html)
		if err != nil {
			return nil, errors.Wrapf(err, "while minifying template %s", name)
		}
		html = minified
	}
	r.Trace(ctx, "rendered template %s (%d bytes)", name, len(html))
	return &data.Page{Name: name, Html: html}, nil
}

func injectScript(html []byte, script string) []byte {
	const closingBody string = "</body>"

	index := bytes.LastIndex(html, []byte(closingBody))
	if index < 0 {
		return append(html, script...)
	}
	injected := make([]byte, 0, len(html)+len(script))
	injected = append(injected, html[:index]...)
	injected = append(injected, script...)
	injected = append(injected, html[index:]...)
	return injected
}
