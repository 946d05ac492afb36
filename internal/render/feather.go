package render

import (
	"image"

	"gocv.io/x/gocv"
)

// feather softens window edges: the mask is eroded, blurred and used as
// per-pixel alpha between the painted video and the canvas
type feather struct {
	kernel   gocv.Mat
	blurSize int
	soft     gocv.Mat
	alpha    gocv.Mat
	fg, bg   gocv.Mat
	ones     gocv.Mat
}

func newFeather(blurSize int) *feather {
	if blurSize%2 == 0 {
		blurSize++
	}
	return &feather{
		kernel:   gocv.GetStructuringElement(gocv.MorphEllipse, image.Pt(3, 3)),
		blurSize: blurSize,
		soft:     gocv.NewMat(),
		alpha:    gocv.NewMat(),
		fg:       gocv.NewMat(),
		bg:       gocv.NewMat(),
		ones:     gocv.NewMat(),
	}
}

// blend composites src over dst through mask, modifying dst in place
func (f *feather) blend(src gocv.Mat, dst *gocv.Mat, mask gocv.Mat) {
	gocv.Erode(mask, &f.soft, f.kernel)
	gocv.GaussianBlur(f.soft, &f.soft, image.Pt(f.blurSize, f.blurSize), 0, 0, gocv.BorderDefault)

	gocv.CvtColor(f.soft, &f.alpha, gocv.ColorGrayToBGR)
	f.alpha.ConvertToWithParams(&f.alpha, gocv.MatTypeCV32FC3, 1.0/255.0, 0)
	if f.ones.Rows() != f.alpha.Rows() || f.ones.Cols() != f.alpha.Cols() {
		f.ones.Close()
		f.ones = gocv.NewMatWithSizeFromScalar(gocv.NewScalar(1, 1, 1, 0),
			f.alpha.Rows(), f.alpha.Cols(), gocv.MatTypeCV32FC3)
	}

	src.ConvertTo(&f.fg, gocv.MatTypeCV32FC3)
	dst.ConvertTo(&f.bg, gocv.MatTypeCV32FC3)

	// out = src*alpha + dst*(1-alpha)
	gocv.Multiply(f.fg, f.alpha, &f.fg)
	gocv.Subtract(f.ones, f.alpha, &f.alpha)
	gocv.Multiply(f.bg, f.alpha, &f.bg)
	gocv.Add(f.fg, f.bg, &f.fg)

	f.fg.ConvertTo(dst, gocv.MatTypeCV8UC3)
}

func (f *feather) Close() error {
	f.kernel.Close()
	f.soft.Close()
	f.alpha.Close()
	f.fg.Close()
	f.bg.Close()
	return f.ones.Close()
}
