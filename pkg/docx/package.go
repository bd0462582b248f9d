package docx

import (
	"archive/zip"
	"bytes"
	"fmt"
	"io"
)

const (
	relsPath         = "word/_rels/document.xml.rels"
	rootRelsPath     = "_rels/.rels"
	contentTypesPath = "[Content_Types].xml"
)

const emptyRelationships = `<?xml version="1.0" encoding="UTF-8" standalone="yes"?>` +
	`<Relationships xmlns="http://schemas.openxmlformats.org/package/2006/relationships"></Relationships>`

// patchPackage 在 docx 库写出的包上补充图片和自定义属性
func patchPackage(pkg []byte, media []*mediaPart, props []Property) ([]byte, error) {
	reader, err := zip.NewReader(bytes.NewReader(pkg), int64(len(pkg)))
	if err != nil {
		return nil, fmt.Errorf("读取文档包失败: %w", err)
	}

	var out bytes.Buffer
	zw := zip.NewWriter(&out)

	// rewrite 读取包内文件并写入修改后的内容
	rewrite := func(f *zip.File, edit func(string) string) error {
		content, err := readZipFile(f)
		if err != nil {
			return err
		}
		return writeZipEntry(zw, f.Name, edit(content))
	}

	seen := make(map[string]bool)
	for _, f := range reader.File {
		seen[f.Name] = true
		switch {
		case f.Name == relsPath && len(media) > 0:
			err = rewrite(f, func(s string) string { return addRelationships(s, media) })
		case f.Name == contentTypesPath:
			err = rewrite(f, func(s string) string {
				s = addContentTypes(s, media)
				if len(props) > 0 {
					s = addCustomPropsOverride(s)
				}
				return s
			})
		case f.Name == rootRelsPath && len(props) > 0:
			err = rewrite(f, addCustomPropsRelationship)
		case f.Name == customPropsPath && len(props) > 0:
			err = rewrite(f, func(s string) string { return mergeCustomProps(s, props) })
		default:
			err = copyZipEntry(zw, f)
		}
		if err != nil {
			return nil, err
		}
	}

	if len(media) > 0 && !seen[relsPath] {
		if err := writeZipEntry(zw, relsPath, addRelationships(emptyRelationships, media)); err != nil {
			return nil, err
		}
	}
	if len(props) > 0 {
		if !seen[rootRelsPath] {
			if err := writeZipEntry(zw, rootRelsPath, addCustomPropsRelationship(emptyRelationships)); err != nil {
				return nil, err
			}
		}
		if !seen[customPropsPath] {
			if err := writeZipEntry(zw, customPropsPath, mergeCustomProps(emptyCustomProps, props)); err != nil {
				return nil, err
			}
		}
	}

	for _, part := range media {
		if err := writeZipEntry(zw, part.partName, string(part.data)); err != nil {
			return nil, err
		}
	}

	if err := zw.Close(); err != nil {
		return nil, fmt.Errorf("关闭文档包失败: %w", err)
	}
	return out.Bytes(), nil
}

// readPart 读取包内指定文件，不存在时返回 false
func readPart(pkg []byte, name string) (string, bool, error) {
	reader, err := zip.NewReader(bytes.NewReader(pkg), int64(len(pkg)))
	if err != nil {
		return "", false, fmt.Errorf("读取文档包失败: %w", err)
	}
	for _, f := range reader.File {
		if f.Name == name {
			content, err := readZipFile(f)
			return content, err == nil, err
		}
	}
	return "", false, nil
}

func readZipFile(f *zip.File) (string, error) {
	rc, err := f.Open()
	if err != nil {
		return "", fmt.Errorf("打开文件 %s 失败: %w", f.Name, err)
	}
	defer rc.Close()

	content, err := io.ReadAll(rc)
	if err != nil {
		return "", fmt.Errorf("读取文件 %s 失败: %w", f.Name, err)
	}
	return string(content), nil
}

func writeZipEntry(zw *zip.Writer, name, content string) error {
	w, err := zw.Create(name)
	if err != nil {
		return fmt.Errorf("创建ZIP文件头失败: %w", err)
	}
	if _, err := io.WriteString(w, content); err != nil {
		return fmt.Errorf("写入文件内容失败: %w", err)
	}
	return nil
}

func copyZipEntry(zw *zip.Writer, f *zip.File) error {
	raw, err := f.OpenRaw()
	if err != nil {
		return fmt.Errorf("打开文件 %s 失败: %w", f.Name, err)
	}
	header := f.FileHeader
	w, err := zw.CreateRaw(&header)
	if err != nil {
		return fmt.Errorf("创建ZIP文件头失败: %w", err)
	}
	if _, err := io.Copy(w, raw); err != nil {
		return fmt.Errorf("复制文件 %s 失败: %w", f.Name, err)
	}
	return nil
}
