package batch

import (
	"archive/zip"
	"bytes"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/natefinch/atomic"

	"github.com/allanpk716/docx_mailmerge/internal/naming"
)

// writeArchive 把本次请求生成的文档打包到 scope 目录下
func writeArchive(scope, prefix string, outputs []Output) (string, error) {
	var buf bytes.Buffer
	zw := zip.NewWriter(&buf)

	for _, out := range outputs {
		if err := addFile(zw, out.Name, out.Path); err != nil {
			return "", err
		}
	}
	if err := zw.Close(); err != nil {
		return "", fmt.Errorf("关闭归档失败: %w", err)
	}

	path := filepath.Join(scope, fmt.Sprintf("%s_%s.zip", prefix, naming.RandomSuffix()))
	if err := atomic.WriteFile(path, &buf); err != nil {
		return "", fmt.Errorf("写入归档失败: %w", err)
	}
	return path, nil
}

func addFile(zw *zip.Writer, name, path string) error {
	f, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("打开文件 %s 失败: %w", name, err)
	}
	defer f.Close()

	info, err := f.Stat()
	if err != nil {
		return fmt.Errorf("读取文件信息失败: %w", err)
	}
	header, err := zip.FileInfoHeader(info)
	if err != nil {
		return fmt.Errorf("创建ZIP文件头失败: %w", err)
	}
	header.Name = name
	header.Method = zip.Deflate

	w, err := zw.CreateHeader(header)
	if err != nil {
		return fmt.Errorf("创建ZIP文件头失败: %w", err)
	}
	if _, err := io.Copy(w, f); err != nil {
		return fmt.Errorf("写入文件内容失败: %w", err)
	}
	return nil
}
