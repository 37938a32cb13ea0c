package utils

import (
	"bytes"
	"image/color"
	"image/png"
	"math"
	"os"
	"strconv"

	"github.com/banbox/banexg/log"
	"github.com/flopp/go-findfont"
	"github.com/fogleman/gg"
	"go.uber.org/zap"
	"golang.org/x/image/font"
	"golang.org/x/image/font/opentype"
)

/*
GetOpenFont 按名称查找系统字体并解析；name为空时依次尝试常见字体
*/
func GetOpenFont(fontName string) (*opentype.Font, error) {
	names := []string{fontName}
	if fontName == "" {
		names = []string{"arial.ttf", "DejaVuSans.ttf", "Verdana.ttf"}
	}
	var lastErr error
	for _, name := range names {
		path, err := findfont.Find(name)
		if err != nil {
			lastErr = err
			continue
		}
		data, err := os.ReadFile(path)
		if err != nil {
			lastErr = err
			continue
		}
		return opentype.Parse(data)
	}
	return nil, lastErr
}

/*
GenCoverImg
生成指标覆盖率热力图。每行一个(标的 周期)，每列一个时间片，
data[i][j]取[0,1]，1表示该时间片内无缺失单元格，0表示全部缺失。
GenCoverImg renders a coverage heatmap. One row per (symbol, timeframe),
one column per time slice; cell values in [0,1], 1 means no missing cells.
*/
func GenCoverImg(data [][]float64, title string, rowNames, colNames []string, fontName string, fontSize float64) ([]byte, error) {
	const lenPadding = 100 // pix length of row names
	const lenBottom = 80   // pix length of col labels
	const lenTitle = 80
	const lenColorBar = 100
	const minCellW = 32
	const cellH = 36
	rows := len(data)
	cols := 0
	if rows > 0 {
		cols = len(data[0])
	}
	cellW := minCellW
	if cols > 0 && minCellW*cols < 360 {
		cellW = 360 / cols
	}
	matWidth := cellW * cols
	imgWidth := matWidth + lenColorBar + lenPadding
	imgHeight := cellH*rows + lenBottom + lenTitle

	dc := gg.NewContext(imgWidth, imgHeight)
	// set background as white
	dc.SetRGB(1, 1, 1)
	dc.Clear()

	// draw title
	dc.SetRGB(0, 0, 0)
	fontFace, err := GetOpenFont(fontName)
	if err != nil {
		log.Warn("load font fail when create coverage image", zap.Error(err))
	}
	if fontSize == 0 {
		fontSize = 14
	}
	setFontFace(dc, fontFace, fontSize*1.5, 72)
	dc.DrawStringAnchored(title, float64(imgWidth)/2, float64(lenTitle)/2, 0.5, 0.5)
	setFontFace(dc, fontFace, fontSize, 72)

	// draw hot matrix
	for i := 0; i < rows; i++ {
		for j := 0; j < cols; j++ {
			value := data[i][j]
			dc.SetColor(coverToColor(value))
			x := float64(j*cellW + lenPadding)
			y := float64(i*cellH + lenTitle)
			dc.DrawRectangle(x, y, float64(cellW), float64(cellH))
			dc.Fill()
			if value < 0.3 {
				dc.SetRGB(1, 1, 1)
			} else {
				dc.SetRGB(0, 0, 0)
			}
			valStr := strconv.FormatFloat(value, 'f', 2, 64)
			dc.DrawStringAnchored(valStr, x+float64(cellW)/2, y+float64(cellH)/2, 0.5, 0.5)
		}
	}
	// draw row and column labels
	dc.SetRGB(0, 0, 0)
	for i, name := range rowNames {
		leftY := float64(i*cellH + cellH/2 + lenTitle)
		dc.DrawStringAnchored(name, float64(lenPadding)/2, leftY, 0.5, 0.5)
	}
	for j, name := range colNames {
		bottomX := float64(j*cellW + cellW/2 + lenPadding)
		dc.Push()
		dc.Translate(bottomX, float64(imgHeight-lenBottom/2))
		dc.Rotate(-math.Pi / 2)
		dc.DrawStringAnchored(name, 0, 0, 0.5, 0.5)
		dc.Pop()
	}
	// draw color bar
	barX := float64(imgWidth - lenColorBar)
	endY := float64(imgHeight - lenBottom)
	grad := gg.NewLinearGradient(barX, lenTitle, barX, endY)
	grad.AddColorStop(0, color.White)
	grad.AddColorStop(1, color.RGBA{R: 255, A: 255}) // red
	dc.SetFillStyle(grad)
	dc.DrawRectangle(barX+lenColorBar/4, lenTitle, lenColorBar/5, endY-lenTitle)
	dc.Fill()
	dc.SetRGB(0, 0, 0)
	dc.DrawStringAnchored("1", barX+lenColorBar*2/3, lenTitle, 0.5, 1)
	dc.DrawStringAnchored("0", barX+lenColorBar*2/3, endY, 0.5, 0)

	var buf bytes.Buffer
	err = png.Encode(&buf, dc.Image())
	if err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func setFontFace(dc *gg.Context, fontFace *opentype.Font, size, dpi float64) {
	if fontFace == nil {
		return
	}
	face, err := opentype.NewFace(fontFace, &opentype.FaceOptions{
		Size:    size,
		DPI:     dpi,
		Hinting: font.HintingNone,
	})
	if err == nil {
		dc.SetFontFace(face)
	} else {
		log.Warn("load font fail when create coverage image", zap.Error(err))
	}
}

func coverToColor(value float64) color.Color {
	// 白红过渡，1为白色，0为红色
	if value < 0 {
		value = 0
	}
	if value > 1 {
		value = 1
	}
	return color.RGBA{R: 255, G: uint8(value * 255), B: uint8(value * 255), A: 255}
}
