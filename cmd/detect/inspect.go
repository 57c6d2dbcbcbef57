package main

import (
	"fmt"

	"github.com/pkg/errors"
	"github.com/urfave/cli/v2"
	"go.uber.org/multierr"

	"github.com/nvr-ai/go-detect/inference"
	"github.com/nvr-ai/go-detect/models/model"
)

func inspectAction(c *cli.Context) (err error) {
	path := c.String(flagModel)
	inputs, outputs, err := inference.Inspect(path, c.String(flagLibraryPath))
	if err != nil {
		return err
	}
	defer multierr.AppendInvoke(&err, multierr.Invoke(inference.ShutdownRuntime))

	w := c.App.Writer
	fmt.Fprintf(w, "model: %s\n", path)
	for _, in := range inputs {
		fmt.Fprintf(w, "input  %-12s %v\n", in.Name, in.Shape)
	}
	for _, out := range outputs {
		fmt.Fprintf(w, "output %-12s %v\n", out.Name, out.Shape)
	}
	if len(outputs) == 0 {
		return errors.Errorf("%s declares no outputs", path)
	}

	layout, rows, classes, err := model.InferOutputLayout(outputs[0].Shape, c.Int(flagNumClasses))
	if err != nil {
		return err
	}
	rowsText := fmt.Sprint(rows)
	if rows == 0 {
		rowsText = "dynamic"
	}
	fmt.Fprintf(w, "detections: layout=%s rows=%s classes=%d row_length=%d\n", layout, rowsText, classes, classes+4)
	return nil
}
