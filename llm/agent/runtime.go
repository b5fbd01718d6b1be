package agent

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"salesrep/config"
	"salesrep/llm"
	"salesrep/llm/assets"
	"salesrep/llm/corpus"
	"salesrep/llm/facts"
	"salesrep/llm/knowledge"
	"salesrep/llm/providers"
	"salesrep/llm/scrape"
	"salesrep/logging"
	"salesrep/metrics"
)

var (
	// ErrUploadsUnsupported 当前 provider 没有 Files API，无法附加用户文档
	ErrUploadsUnsupported = errors.New("the model provider has no file API, documents cannot be attached")
	// ErrDocumentTooLarge 用户文档超过 knowledge.MaxUploadBytes
	ErrDocumentTooLarge = fmt.Errorf("document is larger than %d MB", knowledge.MaxUploadBytes>>20)
)

// Runtime 组装好的助手：知识缓存、编排器和渲染器
type Runtime struct {
	cfg          *config.Config
	cache        *corpus.Cache
	orchestrator *Orchestrator
	renderer     *assets.Renderer
	uploader     knowledge.Ingester
	provider     string
	log          logging.Logger
	closers      []func()
}

// SetupRuntime 从配置创建运行时（main 调用）。
// 缺少 API key 时在任何网络请求之前返回 ErrMissingAPIKey。
func SetupRuntime(ctx context.Context, cfg *config.Config, log logging.Logger, m *metrics.Metrics) (*Runtime, error) {
	if cfg == nil || strings.TrimSpace(cfg.APIKey) == "" {
		return nil, fmt.Errorf("%w: configure the model provider before starting", config.ErrMissingAPIKey)
	}

	shutdownTracing, err := providers.SetupTracing(ctx, log)
	if err != nil {
		return nil, fmt.Errorf("创建 tracing 失败: %w", err)
	}

	provider, err := providers.New(ctx, cfg)
	if err != nil {
		shutdownTracing()
		return nil, fmt.Errorf("创建 ChatModel 失败: %w", err)
	}

	rt, err := NewRuntime(cfg, provider, log, m)
	if err != nil {
		shutdownTracing()
		return nil, err
	}
	rt.closers = append(rt.closers, shutdownTracing)
	return rt, nil
}

// NewRuntime 用已构造的 provider 组装运行时
func NewRuntime(cfg *config.Config, provider *providers.Provider, log logging.Logger, m *metrics.Metrics) (*Runtime, error) {
	f, err := facts.Load(cfg.FactsFile)
	if err != nil {
		return nil, fmt.Errorf("加载 facts 失败: %w", err)
	}

	fetcher := scrape.NewFetcher(cfg.FetchTimeout, cfg.SiteOrigin, log, scrape.WithMetrics(m))
	extractor := scrape.NewExtractor(cfg.PageTextLimit, cfg.ExtractFormat)

	docCfg := knowledge.ResolverConfig{
		Dir:          filepath.Join(cfg.WorkDir, "documents"),
		Patterns:     cfg.ZipMemberPatterns,
		MaxDocuments: cfg.MaxDocuments,
	}
	var uploader knowledge.Ingester
	if provider.Files != nil {
		uploader = knowledge.NewUploader(provider.Files, knowledge.PollPolicy{
			Attempts: cfg.PollAttempts,
			Interval: cfg.PollInterval,
		}, log, m)
		docCfg.Uploader = uploader
	} else {
		log.WithField("provider", provider.Name).Info("provider has no file API, documents will not be attached")
	}
	if cfg.EnablePreviews {
		if p := knowledge.NewPreviewer(cfg.PdftoppmPath, filepath.Join(cfg.WorkDir, "previews"), log); p != nil {
			docCfg.Previewer = p
		}
	}

	builder := corpus.NewBuilder(corpus.BuilderConfig{
		Fetcher:      fetcher,
		Extractor:    extractor,
		Documents:    knowledge.NewResolver(fetcher, docCfg, log),
		Facts:        f,
		Pages:        cfg.Pages,
		ResourcesURL: cfg.ResourcesURL,
	}, log)
	cache := corpus.NewCache(builder, cfg.CacheTTL, log, m)
	renderer := assets.NewRenderer(fetcher, cfg.RenderDir, log, m)

	return &Runtime{
		cfg:          cfg,
		cache:        cache,
		orchestrator: NewOrchestrator(provider.Model, cache, NewPromptBuilder(cfg.SiteOrigin), renderer, log, m),
		renderer:     renderer,
		uploader:     uploader,
		provider:     provider.Name,
		log:          log,
	}, nil
}

// Ask 在会话 s 中回答问题
func (r *Runtime) Ask(ctx context.Context, s *Session, question string) (*Answer, error) {
	return r.orchestrator.Answer(ctx, s, question)
}

// Upload 把用户的目录或销售单（PDF/PNG/JPG）上传到 Files API 并附加到会话。
// 上传结果由文档的 State 表示，只有 ACTIVE 的文档会随后续问题发送。
func (r *Runtime) Upload(ctx context.Context, s *Session, path string) (llm.KnowledgeDocument, error) {
	name := filepath.Base(path)
	if _, ok := knowledge.MIMETypeFor(name); !ok {
		return llm.KnowledgeDocument{}, fmt.Errorf("%s: %w", name, knowledge.ErrUnsupportedType)
	}
	info, err := os.Stat(path)
	if err != nil {
		return llm.KnowledgeDocument{}, fmt.Errorf("读取文档失败: %w", err)
	}
	if info.IsDir() {
		return llm.KnowledgeDocument{}, fmt.Errorf("%s is a directory", path)
	}
	if info.Size() > knowledge.MaxUploadBytes {
		return llm.KnowledgeDocument{}, fmt.Errorf("%s: %w", name, ErrDocumentTooLarge)
	}
	if r.uploader == nil {
		return llm.KnowledgeDocument{}, ErrUploadsUnsupported
	}

	doc := r.uploader.Upload(ctx, llm.KnowledgeDocument{
		Name:      name,
		LocalPath: path,
		SourceURL: "upload://" + s.ID,
		State:     llm.StatePending,
	})
	s.Attach(doc)
	r.log.WithFields(logging.Fields{
		"session":  s.ID,
		"document": name,
		"state":    doc.State,
	}).Info("customer document attached")
	return doc, nil
}

// Warm 预先构建知识快照
func (r *Runtime) Warm(ctx context.Context) *corpus.Snapshot {
	return r.cache.Get(ctx)
}

// Snapshot 返回当前快照，尚未构建时为 nil
func (r *Runtime) Snapshot() *corpus.Snapshot {
	return r.cache.Peek()
}

func (r *Runtime) Renderer() *assets.Renderer {
	return r.renderer
}

func (r *Runtime) Provider() string {
	return r.provider
}

// Close 释放运行时资源
func (r *Runtime) Close() {
	for _, c := range r.closers {
		c()
	}
}
