package types

import (
	"strconv"
	"strings"
)

// Point is the decoded form of the `point` OID: `(x,y)`.
type Point struct {
	X, Y float64
}

// Box is the decoded form of the `box` OID: two points, array-separated
// by ';' when boxes themselves appear inside an array.
type Box struct {
	High, Low Point
}

// Circle is the decoded form of the `circle` OID: `<(x,y),r>`.
type Circle struct {
	Center Point
	Radius float64
}

// Line is the decoded form of the `line` OID: `{a,b,c}` (ax+by+c=0).
type Line struct {
	A, B, C float64
}

// LineSegment is the decoded form of the `lseg` OID: `[(x1,y1),(x2,y2)]`.
type LineSegment struct {
	Start, End Point
}

// Path is the decoded form of the `path` OID: an ordered list of points,
// either open (`[(x,y),...]`) or closed (`((x,y),...)`).
type Path struct {
	Points []Point
	Closed bool
}

// Polygon is the decoded form of the `polygon` OID: `((x,y),...)`.
type Polygon struct {
	Points []Point
}

// TID is the decoded form of the `tid` OID: `(block,offset)`.
type TID struct {
	Block, Offset uint64
}

func parseFloat(s string) (float64, error) {
	f, err := strconv.ParseFloat(strings.TrimSpace(s), 64)
	if err != nil {
		return 0, decodeErrorf("invalid float %q: %v", s, err)
	}
	return f, nil
}

func splitParenPair(s string) (a, b string, err error) {
	s = strings.TrimSpace(s)
	s = strings.TrimPrefix(s, "(")
	s = strings.TrimSuffix(s, ")")
	parts := strings.SplitN(s, ",", 2)
	if len(parts) != 2 {
		return "", "", decodeErrorf("expected two comma-separated values in %q", s)
	}
	return parts[0], parts[1], nil
}

// DecodePoint decodes `(x,y)`.
func DecodePoint(s string) (Point, error) {
	xs, ys, err := splitParenPair(s)
	if err != nil {
		return Point{}, err
	}
	x, err := parseFloat(xs)
	if err != nil {
		return Point{}, err
	}
	y, err := parseFloat(ys)
	if err != nil {
		return Point{}, err
	}
	return Point{X: x, Y: y}, nil
}

// splitPoints splits a string of consecutive "(x,y)" groups separated by
// commas at the top level (commas inside a point's own parens don't count).
func splitPoints(s string) []string {
	var out []string
	depth := 0
	start := 0
	for i := 0; i < len(s); i++ {
		switch s[i] {
		case '(':
			depth++
		case ')':
			depth--
		case ',':
			if depth == 0 {
				out = append(out, s[start:i])
				start = i + 1
			}
		}
	}
	out = append(out, s[start:])
	return out
}

func decodePointList(s string) ([]Point, error) {
	groups := splitPoints(s)
	points := make([]Point, len(groups))
	for i, g := range groups {
		p, err := DecodePoint(strings.TrimSpace(g))
		if err != nil {
			return nil, err
		}
		points[i] = p
	}
	return points, nil
}

// DecodeBox decodes `(x1,y1),(x2,y2)`.
func DecodeBox(s string) (Box, error) {
	points, err := decodePointList(s)
	if err != nil {
		return Box{}, err
	}
	if len(points) != 2 {
		return Box{}, decodeErrorf("box requires exactly two points: %q", s)
	}
	return Box{High: points[0], Low: points[1]}, nil
}

// DecodeCircle decodes `<(x,y),r>`.
func DecodeCircle(s string) (Circle, error) {
	s = strings.TrimSpace(s)
	s = strings.TrimPrefix(s, "<")
	s = strings.TrimSuffix(s, ">")
	idx := strings.LastIndexByte(s, ',')
	if idx < 0 {
		return Circle{}, decodeErrorf("invalid circle %q", s)
	}
	center, err := DecodePoint(s[:idx])
	if err != nil {
		return Circle{}, err
	}
	r, err := parseFloat(s[idx+1:])
	if err != nil {
		return Circle{}, err
	}
	return Circle{Center: center, Radius: r}, nil
}

// DecodeLine decodes `{a,b,c}`.
func DecodeLine(s string) (Line, error) {
	s = strings.TrimSpace(s)
	s = strings.TrimPrefix(s, "{")
	s = strings.TrimSuffix(s, "}")
	parts := strings.Split(s, ",")
	if len(parts) != 3 {
		return Line{}, decodeErrorf("invalid line %q", s)
	}
	a, err := parseFloat(parts[0])
	if err != nil {
		return Line{}, err
	}
	b, err := parseFloat(parts[1])
	if err != nil {
		return Line{}, err
	}
	c, err := parseFloat(parts[2])
	if err != nil {
		return Line{}, err
	}
	return Line{A: a, B: b, C: c}, nil
}

// DecodeLseg decodes `[(x1,y1),(x2,y2)]` or `(x1,y1),(x2,y2)`.
func DecodeLseg(s string) (LineSegment, error) {
	s = strings.TrimSpace(s)
	s = strings.TrimPrefix(s, "[")
	s = strings.TrimSuffix(s, "]")
	points, err := decodePointList(s)
	if err != nil {
		return LineSegment{}, err
	}
	if len(points) != 2 {
		return LineSegment{}, decodeErrorf("lseg requires exactly two points: %q", s)
	}
	return LineSegment{Start: points[0], End: points[1]}, nil
}

// DecodePath decodes `[(x,y),...]` (open) or `((x,y),...)` (closed).
func DecodePath(s string) (Path, error) {
	s = strings.TrimSpace(s)
	closed := strings.HasPrefix(s, "(")
	if closed {
		// "((x,y),...)" — the outer pair wraps the point list; strip it
		// without touching the first/last point's own parens.
		s = strings.TrimPrefix(s, "(")
		s = strings.TrimSuffix(s, ")")
	} else {
		// "[(x,y),...]"
		s = strings.TrimPrefix(s, "[")
		s = strings.TrimSuffix(s, "]")
	}
	points, err := decodePointList(s)
	if err != nil {
		return Path{}, err
	}
	return Path{Points: points, Closed: closed}, nil
}

// DecodePolygon decodes `((x,y),...)`.
func DecodePolygon(s string) (Polygon, error) {
	s = strings.TrimSpace(s)
	s = strings.TrimPrefix(s, "(")
	s = strings.TrimSuffix(s, ")")
	points, err := decodePointList(s)
	if err != nil {
		return Polygon{}, err
	}
	return Polygon{Points: points}, nil
}

// DecodeTid decodes `(block,offset)`.
func DecodeTid(s string) (TID, error) {
	as, bs, err := splitParenPair(s)
	if err != nil {
		return TID{}, err
	}
	block, err := strconv.ParseUint(strings.TrimSpace(as), 10, 64)
	if err != nil {
		return TID{}, decodeErrorf("invalid tid block %q: %v", as, err)
	}
	offset, err := strconv.ParseUint(strings.TrimSpace(bs), 10, 64)
	if err != nil {
		return TID{}, decodeErrorf("invalid tid offset %q: %v", bs, err)
	}
	return TID{Block: block, Offset: offset}, nil
}
