// Package pdfinfo reads page geometry from PDF files.
//
// It understands classic and stream cross-reference sections, object
// streams and the inherited attributes of the page tree, which is enough to
// size a page before handing the file to a rasterizer. Content streams are
// never interpreted.
package pdfinfo

import (
	"bytes"
	"errors"
	"fmt"
	"math"
	"os"
	"regexp"
	"strconv"
)

// ErrNotPDF is returned by [Load] when data has no PDF header.
var ErrNotPDF = errors.New("pdfinfo: not a PDF file")

// ErrNoPages is returned when the page tree holds no pages.
var ErrNoPages = errors.New("pdfinfo: document has no pages")

// letter is the MediaBox assumed for pages that do not declare one.
var letter = [4]float64{0, 0, 612, 792}

// PageInfo describes a page's size in points (1/72 inch).
type PageInfo struct {
	Width    float64
	Height   float64
	Rotation int // clockwise degrees, one of 0, 90, 180 or 270
}

// Oriented returns the page size as displayed, after rotation.
func (p PageInfo) Oriented() (w, h float64) {
	if p.Rotation == 90 || p.Rotation == 270 {
		return p.Height, p.Width
	}
	return p.Width, p.Height
}

// Pixels returns the raster size of the displayed page at dpi.
func (p PageInfo) Pixels(dpi int) (w, h int) {
	ow, oh := p.Oriented()
	return int(math.Ceil(ow * float64(dpi) / 72)), int(math.Ceil(oh * float64(dpi) / 72))
}

type entry struct {
	offset     int64
	stream     int // object stream holding a compressed object
	compressed bool
	inUse      bool
}

// Document is a parsed PDF file.
type Document struct {
	data    []byte
	version string
	xref    map[int]entry
	trailer dict
	cache   map[int]*object
	loading map[int]bool
}

// Open reads and loads the PDF at path.
func Open(path string) (*Document, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	return Load(data)
}

// Load parses the cross-reference data of a PDF held in memory. A damaged
// cross-reference section is rebuilt by scanning for object headers.
func Load(data []byte) (*Document, error) {
	head := data[:min(len(data), 1024)]
	i := bytes.Index(head, []byte("%PDF-"))
	if i < 0 {
		return nil, ErrNotPDF
	}
	doc := &Document{
		data:    data,
		version: string(bytes.TrimSpace(firstLine(head[i+5:]))),
		xref:    make(map[int]entry),
		cache:   make(map[int]*object),
		loading: make(map[int]bool),
	}
	if err := doc.loadXRef(); err != nil || doc.trailer["Root"] == nil {
		if err := doc.reconstruct(); err != nil {
			return nil, err
		}
	}
	return doc, nil
}

// Version returns the header version, such as "1.7".
func (d *Document) Version() string { return d.version }

func firstLine(b []byte) []byte {
	if i := bytes.IndexAny(b, "\r\n"); i >= 0 {
		return b[:i]
	}
	return b
}

func (d *Document) loadXRef() error {
	off, err := d.startXRef()
	if err != nil {
		return err
	}
	seen := make(map[int64]bool)
	for off >= 0 {
		if seen[off] {
			return fmt.Errorf("pdfinfo: cross-reference loop at offset %d", off)
		}
		seen[off] = true
		if off >= int64(len(d.data)) {
			return fmt.Errorf("pdfinfo: cross-reference offset %d out of range", off)
		}
		s := &scanner{buf: d.data, pos: int(off)}
		var section dict
		if s.keyword("xref") {
			section, err = d.xrefTable(s)
		} else {
			section, err = d.xrefStream(s)
		}
		if err != nil {
			return err
		}
		if d.trailer == nil {
			d.trailer = section
		}
		// Hybrid files keep their compressed objects in a separate stream.
		if stm, ok := section.getInt("XRefStm"); ok && !seen[stm] && stm < int64(len(d.data)) {
			seen[stm] = true
			if _, err := d.xrefStream(&scanner{buf: d.data, pos: int(stm)}); err != nil {
				return err
			}
		}
		off = -1
		if prev, ok := section.getInt("Prev"); ok {
			off = prev
		}
	}
	return nil
}

func (d *Document) startXRef() (int64, error) {
	tail := max(0, len(d.data)-2048)
	i := bytes.LastIndex(d.data[tail:], []byte("startxref"))
	if i < 0 {
		return 0, errors.New("pdfinfo: startxref not found")
	}
	s := &scanner{buf: d.data, pos: tail + i + len("startxref")}
	n, ok := s.integer()
	if !ok {
		return 0, errors.New("pdfinfo: invalid startxref")
	}
	return int64(n), nil
}

// xrefTable reads the subsections following "xref" and the trailer after
// them. Entries already known from a newer section win.
func (d *Document) xrefTable(s *scanner) (dict, error) {
	for !s.keyword("trailer") {
		first, ok1 := s.integer()
		count, ok2 := s.integer()
		if !ok1 || !ok2 {
			return nil, fmt.Errorf("pdfinfo: malformed cross-reference table at %d", s.pos)
		}
		for i := 0; i < count; i++ {
			off, ok1 := s.integer()
			_, ok2 := s.integer()
			typ := s.word()
			if !ok1 || !ok2 || (typ != "n" && typ != "f") {
				return nil, fmt.Errorf("pdfinfo: malformed cross-reference entry %d", first+i)
			}
			if _, known := d.xref[first+i]; !known {
				d.xref[first+i] = entry{offset: int64(off), inUse: typ == "n"}
			}
		}
	}
	t, err := s.value()
	if err != nil {
		return nil, err
	}
	if t.kind != kindDict {
		return nil, errors.New("pdfinfo: trailer is not a dictionary")
	}
	return t.dict, nil
}

func (d *Document) xrefStream(s *scanner) (dict, error) {
	if _, ok := s.header(); !ok {
		return nil, fmt.Errorf("pdfinfo: no cross-reference at offset %d", s.pos)
	}
	o, err := s.value()
	if err != nil {
		return nil, err
	}
	if o.kind != kindStream || o.dict.name("Type") != "XRef" {
		return nil, errors.New("pdfinfo: cross-reference stream expected")
	}
	data, err := streamData(o)
	if err != nil {
		return nil, err
	}

	var w [3]int
	wa := o.dict["W"]
	if wa == nil || wa.kind != kindArray || len(wa.array) != 3 {
		return nil, errors.New("pdfinfo: cross-reference stream without /W")
	}
	for i, v := range wa.array {
		if v.kind != kindInt || v.n < 0 || v.n > 8 {
			return nil, errors.New("pdfinfo: invalid /W entry")
		}
		w[i] = int(v.n)
	}
	width := w[0] + w[1] + w[2]
	if width == 0 {
		return nil, errors.New("pdfinfo: empty cross-reference entries")
	}

	size, _ := o.dict.getInt("Size")
	index := []int64{0, size}
	if ia := o.dict["Index"]; ia != nil && ia.kind == kindArray {
		index = index[:0]
		for _, v := range ia.array {
			index = append(index, v.n)
		}
	}

	pos := 0
	for k := 0; k+1 < len(index); k += 2 {
		for num := index[k]; num < index[k]+index[k+1]; num++ {
			if pos+width > len(data) {
				return o.dict, nil
			}
			typ := 1
			if w[0] > 0 {
				typ = bigEndian(data[pos : pos+w[0]])
			}
			f2 := bigEndian(data[pos+w[0] : pos+w[0]+w[1]])
			pos += width
			if _, known := d.xref[int(num)]; known {
				continue
			}
			switch typ {
			case 0:
				d.xref[int(num)] = entry{}
			case 1:
				d.xref[int(num)] = entry{offset: int64(f2), inUse: true}
			case 2:
				d.xref[int(num)] = entry{stream: f2, compressed: true, inUse: true}
			}
		}
	}
	return o.dict, nil
}

func bigEndian(b []byte) int {
	v := 0
	for _, c := range b {
		v = v<<8 | int(c)
	}
	return v
}

var objHeader = regexp.MustCompile(`(?m)^\s*(\d+)\s+\d+\s+obj\b`)

// reconstruct rebuilds the cross-reference map from the object headers in
// the file. Later definitions of an object replace earlier ones.
func (d *Document) reconstruct() error {
	d.xref = make(map[int]entry)
	d.cache = make(map[int]*object)
	for _, m := range objHeader.FindAllSubmatchIndex(d.data, -1) {
		num, err := strconv.Atoi(string(d.data[m[2]:m[3]]))
		if err != nil {
			continue
		}
		d.xref[num] = entry{offset: int64(m[2]), inUse: true}
	}
	if len(d.xref) == 0 {
		return errors.New("pdfinfo: no objects found")
	}

	d.trailer = nil
	for i := bytes.LastIndex(d.data, []byte("trailer")); i >= 0; {
		s := &scanner{buf: d.data, pos: i + len("trailer")}
		if t, err := s.value(); err == nil && t.kind == kindDict && t.dict["Root"] != nil {
			d.trailer = t.dict
			break
		}
		i = bytes.LastIndex(d.data[:i], []byte("trailer"))
	}
	if d.trailer != nil {
		return nil
	}
	for num := range d.xref {
		o := d.object(num)
		if o.kind == kindDict && o.dict.name("Type") == "Catalog" {
			d.trailer = dict{"Root": {kind: kindRef, ref: ref{num: num}}}
			return nil
		}
		// Cross-reference streams double as trailers.
		if o.kind == kindStream && o.dict.name("Type") == "XRef" && o.dict["Root"] != nil {
			d.trailer = o.dict
			return nil
		}
	}
	return errors.New("pdfinfo: document catalog not found")
}

// object returns object num, or null when it is missing or unreadable.
func (d *Document) object(num int) *object {
	if o, ok := d.cache[num]; ok {
		return o
	}
	e, ok := d.xref[num]
	if !ok || !e.inUse || d.loading[num] {
		return null
	}
	d.loading[num] = true
	defer delete(d.loading, num)

	var o *object
	if e.compressed {
		o = d.fromObjectStream(num, e.stream)
	} else {
		o = d.atOffset(e.offset)
	}
	d.cache[num] = o
	return o
}

func (d *Document) atOffset(off int64) *object {
	if off < 0 || off >= int64(len(d.data)) {
		return null
	}
	s := &scanner{buf: d.data, pos: int(off)}
	if _, ok := s.header(); !ok {
		return null
	}
	o, err := s.value()
	if err != nil {
		return null
	}
	return o
}

func (d *Document) fromObjectStream(num, stream int) *object {
	st := d.object(stream)
	if st.kind != kindStream {
		return null
	}
	data, err := streamData(st)
	if err != nil {
		return null
	}
	n, _ := st.dict.getInt("N")
	first, _ := st.dict.getInt("First")
	s := &scanner{buf: data}
	for i := int64(0); i < n; i++ {
		id, ok1 := s.integer()
		off, ok2 := s.integer()
		if !ok1 || !ok2 {
			return null
		}
		if id == num {
			pos := int(first) + off
			if pos < 0 || pos >= len(data) {
				return null
			}
			o, err := (&scanner{buf: data, pos: pos}).value()
			if err != nil {
				return null
			}
			return o
		}
	}
	return null
}

// resolve follows indirect references.
func (d *Document) resolve(o *object) *object {
	for range maxDepth {
		if o == nil {
			return null
		}
		if o.kind != kindRef {
			return o
		}
		o = d.object(o.ref.num)
	}
	return null
}

// inherited page attributes
type attrs struct {
	mediaBox *object
	rotate   *object
}

// Pages returns the geometry of every page in document order.
func (d *Document) Pages() ([]PageInfo, error) {
	root := d.resolve(d.trailer["Root"])
	if root.kind != kindDict {
		return nil, errors.New("pdfinfo: document catalog missing")
	}
	tree := d.resolve(root.dict["Pages"])
	if tree.kind != kindDict {
		return nil, errors.New("pdfinfo: page tree missing")
	}
	var pages []PageInfo
	d.walk(tree.dict, attrs{}, make(map[*object]bool), 0, &pages)
	if len(pages) == 0 {
		return nil, ErrNoPages
	}
	return pages, nil
}

// PageCount returns the number of pages.
func (d *Document) PageCount() (int, error) {
	pages, err := d.Pages()
	return len(pages), err
}

// FirstPage returns the geometry of page one.
func (d *Document) FirstPage() (PageInfo, error) {
	pages, err := d.Pages()
	if err != nil {
		return PageInfo{}, err
	}
	return pages[0], nil
}

func (d *Document) walk(node dict, in attrs, seen map[*object]bool, depth int, out *[]PageInfo) {
	if depth > maxDepth {
		return
	}
	if v, ok := node["MediaBox"]; ok {
		in.mediaBox = v
	}
	if v, ok := node["Rotate"]; ok {
		in.rotate = v
	}
	kids := d.resolve(node["Kids"])
	if node.name("Type") == "Page" || (node.name("Type") == "" && kids.kind != kindArray) {
		*out = append(*out, d.pageInfo(in))
		return
	}
	if kids.kind != kindArray {
		return
	}
	for _, k := range kids.array {
		kid := d.resolve(k)
		if seen[kid] || (kid.kind != kindDict && kid.kind != kindStream) {
			continue
		}
		seen[kid] = true
		d.walk(kid.dict, in, seen, depth+1, out)
	}
}

func (d *Document) pageInfo(a attrs) PageInfo {
	box := letter
	if mb := d.resolve(a.mediaBox); mb.kind == kindArray && len(mb.array) == 4 {
		var b [4]float64
		ok := true
		for i, v := range mb.array {
			b[i], ok = d.resolve(v).number()
			if !ok {
				break
			}
		}
		if ok {
			box = b
		}
	}
	info := PageInfo{Width: math.Abs(box[2] - box[0]), Height: math.Abs(box[3] - box[1])}
	if r, ok := d.resolve(a.rotate).number(); ok {
		info.Rotation = ((int(r)/90)%4 + 4) % 4 * 90
	}
	return info
}
