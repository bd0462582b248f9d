// Package store 在本地保存模板和数据文件：元数据放在 SQLite，文件内容放在目录中
package store

import (
	"bytes"
	"context"
	"database/sql"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/gofrs/flock"
	"github.com/natefinch/atomic"
	"go.uber.org/zap"
	_ "modernc.org/sqlite"

	"github.com/allanpk716/docx_mailmerge/internal/ingest"
	"github.com/allanpk716/docx_mailmerge/pkg/docx"
)

var (
	// ErrNotFound 模板或数据文件不存在
	ErrNotFound = errors.New("not found")
	// ErrInvalidFile 文件名或内容不符合要求
	ErrInvalidFile = errors.New("invalid file")
)

const (
	dbFileName   = "mailmerge.db"
	lockFileName = "store.lock"
	lockRetry    = 50 * time.Millisecond
)

// Entry 一条已保存文件的元数据
type Entry struct {
	Filename  string
	BlobPath  string
	Size      int64
	CreatedAt time.Time
}

// bucket 描述一类文件的表和目录
type bucket struct {
	table    string
	dir      string
	validate func(name string, data []byte) error
}

var (
	templates = bucket{table: "templates", dir: "templates", validate: validateTemplate}
	datasets  = bucket{table: "data", dir: "data", validate: validateData}
)

// Store 本地存储
type Store struct {
	db     *sql.DB
	root   string
	lock   *flock.Flock
	logger *zap.Logger
}

// Open 打开或初始化 root 目录下的存储
func Open(root string, logger *zap.Logger) (*Store, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	if strings.TrimSpace(root) == "" {
		return nil, fmt.Errorf("存储目录不能为空")
	}
	for _, dir := range []string{root, filepath.Join(root, templates.dir), filepath.Join(root, datasets.dir)} {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("创建存储目录失败: %w", err)
		}
	}

	dbPath := filepath.Join(root, dbFileName)
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("打开数据库失败: %w", err)
	}

	pragmas := []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA busy_timeout = 5000",
	}
	for _, pragma := range pragmas {
		if _, execErr := db.Exec(pragma); execErr != nil {
			_ = db.Close()
			return nil, fmt.Errorf("设置 %q 失败: %w", pragma, execErr)
		}
	}

	s := &Store{
		db:     db,
		root:   root,
		lock:   flock.New(filepath.Join(root, lockFileName)),
		logger: logger,
	}
	if err := s.applyMigrations(context.Background()); err != nil {
		_ = db.Close()
		return nil, err
	}

	logger.Debug("存储已打开", zap.String("root", root))
	return s, nil
}

// Close 关闭数据库连接
func (s *Store) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

// Root 返回存储根目录
func (s *Store) Root() string { return s.root }

// UploadTemplate 保存模板，只接受 .docx，同名覆盖
func (s *Store) UploadTemplate(ctx context.Context, filename string, r io.Reader) (*Entry, error) {
	return s.upload(ctx, templates, filename, r)
}

// ListTemplates 按文件名列出全部模板
func (s *Store) ListTemplates(ctx context.Context) ([]Entry, error) {
	return s.list(ctx, templates)
}

// DeleteTemplate 删除模板
func (s *Store) DeleteTemplate(ctx context.Context, filename string) error {
	return s.remove(ctx, templates, filename)
}

// OpenTemplate 打开模板内容
func (s *Store) OpenTemplate(ctx context.Context, filename string) (io.ReadCloser, error) {
	return s.open(ctx, templates, filename)
}

// UploadData 保存数据文件，只接受 CSV 和 XLSX
func (s *Store) UploadData(ctx context.Context, filename string, r io.Reader) (*Entry, error) {
	return s.upload(ctx, datasets, filename, r)
}

// ListData 按文件名列出全部数据文件
func (s *Store) ListData(ctx context.Context) ([]Entry, error) {
	return s.list(ctx, datasets)
}

// DeleteData 删除数据文件
func (s *Store) DeleteData(ctx context.Context, filename string) error {
	return s.remove(ctx, datasets, filename)
}

// OpenData 打开数据文件内容
func (s *Store) OpenData(ctx context.Context, filename string) (io.ReadCloser, error) {
	return s.open(ctx, datasets, filename)
}

func (s *Store) upload(ctx context.Context, b bucket, filename string, r io.Reader) (*Entry, error) {
	name, err := cleanName(filename)
	if err != nil {
		return nil, err
	}
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("读取上传内容失败: %w", err)
	}
	if err := b.validate(name, data); err != nil {
		return nil, err
	}

	unlock, err := s.acquire(ctx)
	if err != nil {
		return nil, err
	}
	defer unlock()

	blobPath := filepath.Join(s.root, b.dir, name)
	if err := atomic.WriteFile(blobPath, bytes.NewReader(data)); err != nil {
		return nil, fmt.Errorf("写入文件失败: %w", err)
	}

	now := time.Now().UTC()
	_, err = s.db.ExecContext(ctx,
		`INSERT INTO `+b.table+` (filename, blob_path, size, created_at) VALUES (?, ?, ?, ?)
        ON CONFLICT(filename) DO UPDATE SET blob_path = excluded.blob_path, size = excluded.size, created_at = excluded.created_at`,
		name, blobPath, len(data), now.Format(time.RFC3339Nano),
	)
	if err != nil {
		return nil, fmt.Errorf("保存元数据失败: %w", err)
	}

	s.logger.Info("文件已保存",
		zap.String("bucket", b.table),
		zap.String("filename", name),
		zap.Int("size", len(data)))

	return &Entry{Filename: name, BlobPath: blobPath, Size: int64(len(data)), CreatedAt: now}, nil
}

func (s *Store) list(ctx context.Context, b bucket) ([]Entry, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT filename, blob_path, size, created_at FROM `+b.table+` ORDER BY filename COLLATE NOCASE`)
	if err != nil {
		return nil, fmt.Errorf("查询 %s 失败: %w", b.table, err)
	}
	defer rows.Close()

	var entries []Entry
	for rows.Next() {
		var (
			e       Entry
			created string
		)
		if err := rows.Scan(&e.Filename, &e.BlobPath, &e.Size, &created); err != nil {
			return nil, fmt.Errorf("读取 %s 记录失败: %w", b.table, err)
		}
		e.CreatedAt, _ = time.Parse(time.RFC3339Nano, created)
		entries = append(entries, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("遍历 %s 失败: %w", b.table, err)
	}
	return entries, nil
}

func (s *Store) lookup(ctx context.Context, b bucket, name string) (*Entry, error) {
	var (
		e       Entry
		created string
	)
	err := s.db.QueryRowContext(ctx,
		`SELECT filename, blob_path, size, created_at FROM `+b.table+` WHERE filename = ?`, name,
	).Scan(&e.Filename, &e.BlobPath, &e.Size, &created)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, name)
	}
	if err != nil {
		return nil, fmt.Errorf("查询 %s 失败: %w", name, err)
	}
	e.CreatedAt, _ = time.Parse(time.RFC3339Nano, created)
	return &e, nil
}

func (s *Store) open(ctx context.Context, b bucket, filename string) (io.ReadCloser, error) {
	name, err := cleanName(filename)
	if err != nil {
		return nil, err
	}
	e, err := s.lookup(ctx, b, name)
	if err != nil {
		return nil, err
	}
	f, err := os.Open(e.BlobPath)
	if errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, name)
	}
	if err != nil {
		return nil, fmt.Errorf("打开文件失败: %w", err)
	}
	return f, nil
}

// remove 删除记录和文件，文件已不存在时只删除记录
func (s *Store) remove(ctx context.Context, b bucket, filename string) error {
	name, err := cleanName(filename)
	if err != nil {
		return err
	}

	unlock, err := s.acquire(ctx)
	if err != nil {
		return err
	}
	defer unlock()

	e, err := s.lookup(ctx, b, name)
	if err != nil {
		return err
	}
	if err := os.Remove(e.BlobPath); err != nil {
		if !errors.Is(err, os.ErrNotExist) {
			return fmt.Errorf("删除文件失败: %w", err)
		}
		s.logger.Warn("文件已不存在，只删除记录", zap.String("filename", name))
	}
	if _, err := s.db.ExecContext(ctx, `DELETE FROM `+b.table+` WHERE filename = ?`, name); err != nil {
		return fmt.Errorf("删除元数据失败: %w", err)
	}

	s.logger.Info("文件已删除", zap.String("bucket", b.table), zap.String("filename", name))
	return nil
}

// acquire 获取跨进程写锁
func (s *Store) acquire(ctx context.Context) (func(), error) {
	ok, err := s.lock.TryLockContext(ctx, lockRetry)
	if err != nil {
		return nil, fmt.Errorf("获取存储锁失败: %w", err)
	}
	if !ok {
		return nil, fmt.Errorf("获取存储锁失败: %s", s.lock.Path())
	}
	return func() {
		if err := s.lock.Unlock(); err != nil {
			s.logger.Warn("释放存储锁失败", zap.Error(err))
		}
	}, nil
}

func cleanName(filename string) (string, error) {
	name := filepath.Base(strings.TrimSpace(strings.ReplaceAll(filename, `\`, "/")))
	if name == "" || name == "." || name == ".." || name == "/" {
		return "", fmt.Errorf("%w: 文件名为空", ErrInvalidFile)
	}
	return name, nil
}

func validateTemplate(name string, data []byte) error {
	if !strings.EqualFold(filepath.Ext(name), ".docx") {
		return fmt.Errorf("%w: Only .docx allowed", ErrInvalidFile)
	}
	if _, err := docx.ParseTemplate(name, data); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidFile, err)
	}
	return nil
}

func validateData(name string, _ []byte) error {
	if !ingest.SupportedExtension(name) {
		return fmt.Errorf("%w: %w", ErrInvalidFile, ingest.ErrUnsupportedFile)
	}
	return nil
}
