// Package pptx extracts slide titles, text, speaker notes, pictures and
// document metadata from Office Open XML presentations.
package pptx

import (
	"archive/zip"
	"bytes"
	"encoding/xml"
	"errors"
	"fmt"
	"io"
	"mime"
	"path"
	"strings"
)

const (
	presentationPart = "ppt/presentation.xml"
	corePropsPart    = "docProps/core.xml"

	relTypeSlide = "/slide"
	relTypeNotes = "/notesSlide"
	relTypeImage = "/image"

	maxPartSize = 64 << 20
)

var ErrInvalidPresentation = errors.New("not a valid .pptx presentation")

type Image struct {
	Name     string
	MimeType string
	Data     []byte
}

// Ext returns the file extension of the image, including the dot.
func (i Image) Ext() string {
	return path.Ext(i.Name)
}

type Slide struct {
	Number  int
	Title   string
	Content string
	Notes   string
	Images  []Image
}

type Metadata struct {
	Title     string
	Author    string
	CreatedAt string
}

type Presentation struct {
	Slides   []Slide
	Metadata Metadata
}

// ExtractedText joins every slide title (as a heading) and body, separated by blank lines.
func (p *Presentation) ExtractedText() string {
	var lines []string
	for _, s := range p.Slides {
		if s.Title != "" {
			lines = append(lines, "# "+s.Title)
		}
		if s.Content != "" {
			lines = append(lines, s.Content)
		}
		lines = append(lines, "")
	}
	return strings.Join(lines, "\n")
}

// Parser reads .pptx archives held in memory.
type Parser struct{}

func (Parser) Parse(data []byte) (*Presentation, error) {
	return Parse(data)
}

func Parse(data []byte) (*Presentation, error) {
	zr, err := zip.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidPresentation, err)
	}
	pkg := &archive{files: make(map[string]*zip.File, len(zr.File))}
	for _, f := range zr.File {
		pkg.files[f.Name] = f
	}

	slidePaths, err := pkg.slideOrder()
	if err != nil {
		return nil, err
	}

	pres := &Presentation{Metadata: pkg.metadata()}
	for i, slidePath := range slidePaths {
		slide, err := pkg.slide(slidePath)
		if err != nil {
			return nil, fmt.Errorf("slide %d: %w", i+1, err)
		}
		slide.Number = i + 1
		pres.Slides = append(pres.Slides, slide)
	}
	return pres, nil
}

type archive struct {
	files map[string]*zip.File
}

func (a *archive) read(name string) ([]byte, error) {
	f, ok := a.files[name]
	if !ok {
		return nil, fmt.Errorf("missing part %s", name)
	}
	rc, err := f.Open()
	if err != nil {
		return nil, err
	}
	defer rc.Close()
	return io.ReadAll(io.LimitReader(rc, maxPartSize))
}

func (a *archive) decode(name string, v any) error {
	data, err := a.read(name)
	if err != nil {
		return err
	}
	if err := xml.Unmarshal(data, v); err != nil {
		return fmt.Errorf("decode %s: %w", name, err)
	}
	return nil
}

type relationship struct {
	ID     string `xml:"Id,attr"`
	Type   string `xml:"Type,attr"`
	Target string `xml:"Target,attr"`
	Mode   string `xml:"TargetMode,attr"`
}

type relationships struct {
	Items []relationship `xml:"Relationship"`
}

// rels loads the relationship part of name and resolves targets to archive paths.
func (a *archive) rels(name string) map[string]relationship {
	relsPath := path.Join(path.Dir(name), "_rels", path.Base(name)+".rels")
	var r relationships
	if err := a.decode(relsPath, &r); err != nil {
		return map[string]relationship{}
	}
	out := make(map[string]relationship, len(r.Items))
	for _, rel := range r.Items {
		if rel.Mode != "External" {
			rel.Target = resolveTarget(path.Dir(name), rel.Target)
		}
		out[rel.ID] = rel
	}
	return out
}

func resolveTarget(base, target string) string {
	if strings.HasPrefix(target, "/") {
		return strings.TrimPrefix(target, "/")
	}
	return path.Clean(path.Join(base, target))
}

type presentationXML struct {
	SlideIDs []struct {
		RID string `xml:"http://schemas.openxmlformats.org/officeDocument/2006/relationships id,attr"`
	} `xml:"sldIdLst>sldId"`
}

func (a *archive) slideOrder() ([]string, error) {
	var p presentationXML
	if err := a.decode(presentationPart, &p); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidPresentation, err)
	}
	rels := a.rels(presentationPart)

	var paths []string
	for _, id := range p.SlideIDs {
		rel, ok := rels[id.RID]
		if !ok || !strings.HasSuffix(rel.Type, relTypeSlide) {
			continue
		}
		paths = append(paths, rel.Target)
	}
	return paths, nil
}

type textBody struct {
	Paragraphs []struct {
		Runs   []struct{ Text string `xml:"t"` } `xml:"r"`
		Fields []struct{ Text string `xml:"t"` } `xml:"fld"`
	} `xml:"p"`
}

func (tb *textBody) text() string {
	if tb == nil {
		return ""
	}
	var lines []string
	for _, p := range tb.Paragraphs {
		var b strings.Builder
		for _, r := range p.Runs {
			b.WriteString(r.Text)
		}
		for _, f := range p.Fields {
			b.WriteString(f.Text)
		}
		if line := strings.TrimSpace(b.String()); line != "" {
			lines = append(lines, line)
		}
	}
	return strings.Join(lines, "\n")
}

type shapeXML struct {
	Placeholder *struct {
		Type string `xml:"type,attr"`
	} `xml:"nvSpPr>nvPr>ph"`
	TxBody *textBody `xml:"txBody"`
}

func (s shapeXML) placeholderType() string {
	if s.Placeholder == nil {
		return ""
	}
	return s.Placeholder.Type
}

type pictureXML struct {
	Blip struct {
		Embed string `xml:"http://schemas.openxmlformats.org/officeDocument/2006/relationships embed,attr"`
	} `xml:"blipFill>blip"`
}

type shapeTree struct {
	Shapes   []shapeXML   `xml:"sp"`
	Pictures []pictureXML `xml:"pic"`
	Groups   []shapeTree  `xml:"grpSp"`
}

func (t shapeTree) walk(shape func(shapeXML), pic func(pictureXML)) {
	for _, s := range t.Shapes {
		shape(s)
	}
	for _, p := range t.Pictures {
		pic(p)
	}
	for _, g := range t.Groups {
		g.walk(shape, pic)
	}
}

type slideXML struct {
	Tree shapeTree `xml:"cSld>spTree"`
}

func isTitle(phType string) bool {
	return phType == "title" || phType == "ctrTitle"
}

func (a *archive) slide(name string) (Slide, error) {
	var sx slideXML
	if err := a.decode(name, &sx); err != nil {
		return Slide{}, err
	}
	rels := a.rels(name)

	var (
		slide Slide
		body  []string
	)
	sx.Tree.walk(
		func(s shapeXML) {
			text := s.TxBody.text()
			if text == "" {
				return
			}
			if isTitle(s.placeholderType()) && slide.Title == "" {
				slide.Title = text
				return
			}
			body = append(body, text)
		},
		func(p pictureXML) {
			rel, ok := rels[p.Blip.Embed]
			if !ok || rel.Mode == "External" || !strings.HasSuffix(rel.Type, relTypeImage) {
				return
			}
			data, err := a.read(rel.Target)
			if err != nil {
				return
			}
			slide.Images = append(slide.Images, Image{
				Name:     path.Base(rel.Target),
				MimeType: mimeType(rel.Target),
				Data:     data,
			})
		},
	)
	slide.Content = strings.Join(body, "\n")

	for _, rel := range rels {
		if strings.HasSuffix(rel.Type, relTypeNotes) {
			slide.Notes = a.notes(rel.Target)
			break
		}
	}
	return slide, nil
}

func (a *archive) notes(name string) string {
	var nx slideXML
	if err := a.decode(name, &nx); err != nil {
		return ""
	}
	var parts []string
	nx.Tree.walk(func(s shapeXML) {
		if s.placeholderType() == "body" {
			if text := s.TxBody.text(); text != "" {
				parts = append(parts, text)
			}
		}
	}, func(pictureXML) {})
	return strings.Join(parts, "\n")
}

type coreXML struct {
	Title   string `xml:"title"`
	Creator string `xml:"creator"`
	Created string `xml:"created"`
}

func (a *archive) metadata() Metadata {
	md := Metadata{Title: "Untitled", Author: "Unknown"}
	var core coreXML
	if err := a.decode(corePropsPart, &core); err != nil {
		return md
	}
	if t := strings.TrimSpace(core.Title); t != "" {
		md.Title = t
	}
	if c := strings.TrimSpace(core.Creator); c != "" {
		md.Author = c
	}
	md.CreatedAt = strings.TrimSpace(core.Created)
	return md
}

func mimeType(name string) string {
	if t := mime.TypeByExtension(strings.ToLower(path.Ext(name))); t != "" {
		return t
	}
	return "application/octet-stream"
}
