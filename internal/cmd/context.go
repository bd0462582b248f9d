package cmd

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"go.uber.org/zap"

	"github.com/allanpk716/docx_mailmerge/internal/batch"
	"github.com/allanpk716/docx_mailmerge/internal/config"
	"github.com/allanpk716/docx_mailmerge/internal/dates"
	"github.com/allanpk716/docx_mailmerge/internal/ingest"
	"github.com/allanpk716/docx_mailmerge/internal/logger"
	"github.com/allanpk716/docx_mailmerge/internal/naming"
	"github.com/allanpk716/docx_mailmerge/internal/processor"
	"github.com/allanpk716/docx_mailmerge/internal/record"
	"github.com/allanpk716/docx_mailmerge/internal/session"
	"github.com/allanpk716/docx_mailmerge/internal/store"
)

// app 保存一次命令执行中共享的配置、日志和存储
type app struct {
	configPath string
	verbose    bool

	manager config.ConfigManager
	cfg     *config.Config
	logger  *zap.Logger
	store   *store.Store
	session *session.Session
}

func newApp() *app {
	return &app{
		manager: config.NewConfigManager(),
		session: session.New(),
	}
}

func (a *app) path() string {
	if p := strings.TrimSpace(a.configPath); p != "" {
		return p
	}
	return config.DefaultConfigPath()
}

// ensureConfig 加载配置并创建日志器，只执行一次
func (a *app) ensureConfig() (*config.Config, error) {
	if a.cfg != nil {
		return a.cfg, nil
	}
	cfg, err := a.manager.LoadConfig(a.path())
	if err != nil {
		return nil, err
	}

	level := cfg.LogLevel
	if a.verbose {
		level = "debug"
	}
	log, err := logger.New(level)
	if err != nil {
		return nil, err
	}

	a.cfg = cfg
	a.logger = log
	a.logger.Debug("配置已加载", zap.String("path", a.path()), zap.String("store_dir", cfg.StoreDir))
	return cfg, nil
}

// ensureStore 打开本地存储
func (a *app) ensureStore() (*store.Store, error) {
	if a.store != nil {
		return a.store, nil
	}
	cfg, err := a.ensureConfig()
	if err != nil {
		return nil, err
	}
	s, err := store.Open(cfg.StoreDir, a.logger)
	if err != nil {
		return nil, err
	}
	a.store = s
	return s, nil
}

func (a *app) close() {
	if a.store != nil {
		if err := a.store.Close(); err != nil && a.logger != nil {
			a.logger.Warn("关闭存储失败", zap.Error(err))
		}
		a.store = nil
	}
	if a.logger != nil {
		_ = a.logger.Sync()
	}
}

func (a *app) statePath() string {
	return filepath.Join(a.cfg.StoreDir, session.StateFileName)
}

// ingestOptions 日期字段在 XLSX 中按原始序列值读取
func (a *app) ingestOptions() ingest.Options {
	cols := append([]string(nil), a.cfg.DateFields...)
	for _, group := range a.cfg.AliasMembers() {
		for _, m := range group {
			if record.CanonicalKey(m) == "date" {
				cols = append(cols, group...)
				break
			}
		}
	}
	return ingest.Options{DateColumns: cols}
}

// readDataset 按来源类型读取数据集
func (a *app) readDataset(ctx context.Context, st *session.State) (*ingest.Dataset, error) {
	switch st.Kind {
	case session.KindPasted:
		ds, errs := ingest.ParsePasted(st.Pasted)
		if ds.Len() == 0 {
			return nil, fmt.Errorf("No valid data. %s", ingest.JoinErrors(errs))
		}
		return ds, nil
	case session.KindFile:
		f, err := os.Open(st.Source)
		if err != nil {
			return nil, fmt.Errorf("打开数据文件失败: %w", err)
		}
		defer f.Close()
		return ingest.ParseFile(filepath.Base(st.Source), f, a.ingestOptions())
	default:
		s, err := a.ensureStore()
		if err != nil {
			return nil, err
		}
		rc, err := s.OpenData(ctx, st.Source)
		if err != nil {
			return nil, err
		}
		defer rc.Close()
		return ingest.ParseFile(st.Source, rc, a.ingestOptions())
	}
}

// openDataset 读取本地文件或已保存的数据文件，本地文件优先
func (a *app) openDataset(ctx context.Context, source string) (*ingest.Dataset, *session.State, error) {
	st := &session.State{Kind: session.KindStored, Source: source}
	if info, err := os.Stat(source); err == nil && !info.IsDir() {
		abs, err := filepath.Abs(source)
		if err != nil {
			return nil, nil, fmt.Errorf("解析路径失败: %w", err)
		}
		st = &session.State{Kind: session.KindFile, Source: abs}
	}
	ds, err := a.readDataset(ctx, st)
	if err != nil {
		return nil, nil, err
	}
	return ds, st, nil
}

// activeRows 恢复上一次加载的数据
func (a *app) activeRows(ctx context.Context) ([]record.Raw, error) {
	if a.session.Dataset() == nil {
		st, err := session.LoadState(a.statePath())
		if err != nil {
			return nil, err
		}
		ds, err := a.readDataset(ctx, st)
		if err != nil {
			return nil, err
		}
		a.session.Replace(ds)
	}
	return a.session.Require()
}

// activate 设置当前数据集并保存会话状态
func (a *app) activate(ds *ingest.Dataset, st *session.State) error {
	a.session.Replace(ds)
	return session.SaveState(a.statePath(), st)
}

// generator 按配置组装批量生成器
func (a *app) generator() (*batch.Generator, error) {
	s, err := a.ensureStore()
	if err != nil {
		return nil, err
	}
	cfg := a.cfg
	normalizer := record.NewNormalizer(record.Options{
		AliasGroups: cfg.AliasMembers(),
		DateFields:  cfg.DateFields,
	}, dates.NewCoercer(), a.logger)
	engine := processor.NewEngine(processor.Options{ImageWidthEMU: cfg.ImageWidthEMU()}, a.logger)

	return batch.NewGenerator(s, normalizer, engine, naming.NewResolver(cfg.FilenameMaxLength), batch.Options{
		WorkDir:           cfg.WorkDir,
		RequiredFields:    cfg.RequiredFields,
		ErrorSummaryLimit: cfg.ErrorSummaryLimit,
	}, a.logger), nil
}
