package report

import (
	"fmt"
	"strconv"

	"gonum.org/v1/plot"
	"gonum.org/v1/plot/palette"
	"gonum.org/v1/plot/plotter"
	"gonum.org/v1/plot/vg"

	"github.com/YuminosukeSato/robotdetect/metrics"
	scigoErrors "github.com/YuminosukeSato/robotdetect/pkg/errors"
	"github.com/YuminosukeSato/robotdetect/sklearn/gbdt"
)

const (
	chartWidth  = 6 * vg.Inch
	chartHeight = 5 * vg.Inch
)

// confusionGrid adapts a confusion matrix to plotter.GridXYZ.
// Columns are predictions, rows are truth.
type confusionGrid metrics.Confusion

func (g confusionGrid) Dims() (c, r int)   { return 2, 2 }
func (g confusionGrid) Z(c, r int) float64 { return float64(g[r][c]) }
func (g confusionGrid) X(c int) float64    { return float64(c) }
func (g confusionGrid) Y(r int) float64    { return float64(r) }

// RenderConfusionMatrix draws a 2x2 heat map annotated with counts.
func RenderConfusionMatrix(path string, c metrics.Confusion, classNames [2]string) error {
	p := plot.New()
	p.Title.Text = "Confusion Matrix"
	p.X.Label.Text = "Predicted"
	p.Y.Label.Text = "True"

	heat := plotter.NewHeatMap(confusionGrid(c), palette.Heat(12, 1))
	heat.Min, heat.Max = 0, float64(max(c.TN(), c.FP(), c.FN(), c.TP(), 1))
	p.Add(heat)

	var cells plotter.XYLabels
	for r := 0; r < 2; r++ {
		for col := 0; col < 2; col++ {
			cells.XYs = append(cells.XYs, plotter.XY{X: float64(col), Y: float64(r)})
			cells.Labels = append(cells.Labels, strconv.Itoa(c[r][col]))
		}
	}
	labels, err := plotter.NewLabels(cells)
	if err != nil {
		return err
	}
	p.Add(labels)
	p.NominalX(classNames[0], classNames[1])
	p.NominalY(classNames[0], classNames[1])

	return p.Save(chartWidth, chartHeight, path)
}

// RenderROC draws the ROC curve with the chance diagonal.
func RenderROC(path string, points []metrics.ROCPoint, auc float64) error {
	if len(points) == 0 {
		return scigoErrors.NewValueError("RenderROC", "no ROC points")
	}
	xys := make(plotter.XYs, len(points))
	for i, pt := range points {
		xys[i] = plotter.XY{X: pt.FPR, Y: pt.TPR}
	}

	p := plot.New()
	p.Title.Text = "ROC Curve"
	p.X.Label.Text = "False Positive Rate"
	p.Y.Label.Text = "True Positive Rate"
	p.X.Min, p.X.Max = 0, 1
	p.Y.Min, p.Y.Max = 0, 1
	p.Add(plotter.NewGrid())

	curve, err := plotter.NewLine(xys)
	if err != nil {
		return err
	}
	curve.Width = vg.Points(2)
	chance, err := plotter.NewLine(plotter.XYs{{X: 0, Y: 0}, {X: 1, Y: 1}})
	if err != nil {
		return err
	}
	chance.Dashes = []vg.Length{vg.Points(4), vg.Points(4)}

	p.Add(curve, chance)
	p.Legend.Add(fmt.Sprintf("ROC (AUC = %.3f)", auc), curve)
	p.Legend.Add("Chance", chance)
	p.Legend.Top = false
	p.Legend.Left = false

	return p.Save(chartWidth, chartHeight, path)
}

// RenderPR draws the precision-recall curve, anchored at recall 0.
func RenderPR(path string, points []metrics.PRPoint, ap float64) error {
	if len(points) == 0 {
		return scigoErrors.NewValueError("RenderPR", "no precision-recall points")
	}
	xys := make(plotter.XYs, 0, len(points)+1)
	xys = append(xys, plotter.XY{X: 0, Y: 1})
	for _, pt := range points {
		xys = append(xys, plotter.XY{X: pt.Recall, Y: pt.Precision})
	}

	p := plot.New()
	p.Title.Text = "Precision-Recall Curve"
	p.X.Label.Text = "Recall"
	p.Y.Label.Text = "Precision"
	p.X.Min, p.X.Max = 0, 1
	p.Y.Min, p.Y.Max = 0, 1
	p.Add(plotter.NewGrid())

	curve, err := plotter.NewLine(xys)
	if err != nil {
		return err
	}
	curve.Width = vg.Points(2)
	p.Add(curve)
	p.Legend.Add(fmt.Sprintf("PR (AP = %.3f)", ap), curve)
	p.Legend.Left = true
	p.Legend.Top = false

	return p.Save(chartWidth, chartHeight, path)
}

// RenderTopFeatures draws a horizontal bar chart with the most important
// feature on top.
func RenderTopFeatures(path string, ranked gbdt.RankedImportance) error {
	if len(ranked) == 0 {
		return scigoErrors.NewValueError("RenderTopFeatures", "no feature importances")
	}
	n := len(ranked)
	values := make(plotter.Values, n)
	names := make([]string, n)
	for i, fs := range ranked {
		values[n-1-i] = fs.Score
		names[n-1-i] = fs.Name
	}

	p := plot.New()
	p.Title.Text = fmt.Sprintf("Top %d Features", n)
	p.X.Label.Text = "Importance (gain)"

	bars, err := plotter.NewBarChart(values, vg.Points(14))
	if err != nil {
		return err
	}
	bars.Horizontal = true
	p.Add(bars)
	p.NominalY(names...)

	return p.Save(chartWidth, chartHeight, path)
}
