package docx

import (
	"encoding/xml"
	"fmt"
	"strings"
)

const (
	customPropsPath        = "docProps/custom.xml"
	customPropsRelType     = "http://schemas.openxmlformats.org/officeDocument/2006/relationships/custom-properties"
	customPropsContentType = "application/vnd.openxmlformats-officedocument.custom-properties+xml"
	customPropsFmtID       = "{D5CDD505-2E9C-101B-9397-08002B2CF9AE}"

	customPropsHeader = `<?xml version="1.0" encoding="UTF-8" standalone="yes"?>` + "\n" +
		`<Properties xmlns="http://schemas.openxmlformats.org/officeDocument/2006/custom-properties" ` +
		`xmlns:vt="http://schemas.openxmlformats.org/officeDocument/2006/docPropsVTypes">`
	customPropsFooter = `</Properties>`
)

const emptyCustomProps = customPropsHeader + customPropsFooter

// Property 自定义文档属性，值以字符串保存
type Property struct {
	Name  string
	Value string
}

// customProperties docProps/custom.xml 的结构，属性值按原样保留
type customProperties struct {
	XMLName    xml.Name         `xml:"Properties"`
	Properties []customProperty `xml:"property"`
}

type customProperty struct {
	FmtID string `xml:"fmtid,attr"`
	PID   int    `xml:"pid,attr"`
	Name  string `xml:"name,attr"`
	Inner string `xml:",innerxml"`
}

// SetProperty 设置自定义文档属性，保存时写入 docProps/custom.xml
func (d *Document) SetProperty(name, value string) {
	for i := range d.props {
		if d.props[i].Name == name {
			d.props[i].Value = value
			return
		}
	}
	d.props = append(d.props, Property{Name: name, Value: value})
}

// ReadProperties 读取文档包中的字符串类型自定义属性
func ReadProperties(pkg []byte) (map[string]string, error) {
	content, ok, err := readPart(pkg, customPropsPath)
	if err != nil {
		return nil, err
	}
	out := make(map[string]string)
	if !ok {
		return out, nil
	}

	props, err := parseCustomProps(content)
	if err != nil {
		return nil, err
	}
	for _, p := range props.Properties {
		var v struct {
			Value string `xml:",chardata"`
		}
		if err := xml.Unmarshal([]byte(strings.TrimSpace(p.Inner)), &v); err != nil {
			continue
		}
		out[p.Name] = v.Value
	}
	return out, nil
}

func parseCustomProps(content string) (*customProperties, error) {
	var props customProperties
	if strings.TrimSpace(content) == "" {
		return &props, nil
	}
	if err := xml.Unmarshal([]byte(content), &props); err != nil {
		return nil, fmt.Errorf("解析自定义属性XML失败: %w", err)
	}
	return &props, nil
}

// mergeCustomProps 同名属性被覆盖，其余属性保持不变；原内容无法解析时整体重建
func mergeCustomProps(content string, updates []Property) string {
	props, err := parseCustomProps(content)
	if err != nil {
		props = &customProperties{}
	}

	nextPID := 1
	for _, p := range props.Properties {
		if p.PID > nextPID {
			nextPID = p.PID
		}
	}

	for _, u := range updates {
		inner := "<vt:lpwstr>" + escapeText(u.Value) + "</vt:lpwstr>"
		replaced := false
		for i := range props.Properties {
			if props.Properties[i].Name == u.Name {
				props.Properties[i].Inner = inner
				replaced = true
				break
			}
		}
		if !replaced {
			// pid 从 2 开始
			nextPID++
			props.Properties = append(props.Properties, customProperty{
				FmtID: customPropsFmtID,
				PID:   nextPID,
				Name:  u.Name,
				Inner: inner,
			})
		}
	}

	var sb strings.Builder
	sb.WriteString(customPropsHeader)
	for _, p := range props.Properties {
		var name strings.Builder
		_ = escapeAttr(&name, p.Name)
		fmt.Fprintf(&sb, `<property fmtid="%s" pid="%d" name="%s">%s</property>`, p.FmtID, p.PID, name.String(), p.Inner)
	}
	sb.WriteString(customPropsFooter)
	return sb.String()
}

func addCustomPropsRelationship(rels string) string {
	if strings.Contains(rels, customPropsRelType) {
		return rels
	}
	id := "rIdMailMergeProps"
	rel := fmt.Sprintf(`<Relationship Id="%s" Type="%s" Target="%s"/>`, id, customPropsRelType, customPropsPath)
	idx := strings.LastIndex(rels, "</Relationships>")
	if idx < 0 {
		return rels
	}
	return rels[:idx] + rel + rels[idx:]
}

func addCustomPropsOverride(types string) string {
	if strings.Contains(types, `"/`+customPropsPath+`"`) {
		return types
	}
	override := fmt.Sprintf(`<Override PartName="/%s" ContentType="%s"/>`, customPropsPath, customPropsContentType)
	idx := strings.LastIndex(types, "</Types>")
	if idx < 0 {
		return types
	}
	return types[:idx] + override + types[idx:]
}

func escapeText(s string) string {
	var sb strings.Builder
	_ = xml.EscapeText(&sb, []byte(s))
	return sb.String()
}
