package tracking

// BBox is an axis-aligned face bounding box in pixel coordinates, using the
// (top, right, bottom, left) ordering of the external detector. A valid box
// has Right > Left and Bottom > Top.
type BBox struct {
	Top    int `json:"top"`
	Right  int `json:"right"`
	Bottom int `json:"bottom"`
	Left   int `json:"left"`
}

// Width returns the horizontal extent of the box.
func (b BBox) Width() int {
	return b.Right - b.Left
}

// Height returns the vertical extent of the box.
func (b BBox) Height() int {
	return b.Bottom - b.Top
}

// Area returns the box area, or 0 for a degenerate box.
func (b BBox) Area() int {
	if b.Width() <= 0 || b.Height() <= 0 {
		return 0
	}
	return b.Width() * b.Height()
}

// IoU calculates the Intersection over Union of two boxes: intersection
// area divided by union area. Disjoint or degenerate boxes yield 0.
func IoU(a, b BBox) float64 {
	interTop := max(a.Top, b.Top)
	interLeft := max(a.Left, b.Left)
	interBottom := min(a.Bottom, b.Bottom)
	interRight := min(a.Right, b.Right)

	if interBottom <= interTop || interRight <= interLeft {
		return 0.0
	}

	interArea := (interBottom - interTop) * (interRight - interLeft)
	unionArea := a.Area() + b.Area() - interArea
	if unionArea <= 0 {
		return 0.0
	}

	return float64(interArea) / float64(unionArea)
}
