// Package main is the detect command: real-time object detection on a camera, video or images.
package main

import (
	"fmt"
	"os"

	"github.com/urfave/cli/v2"
)

const (
	// Flags.
	flagConfig        = "config"
	flagModel         = "model"
	flagLabels        = "labels"
	flagLibraryPath   = "library-path"
	flagDevice        = "device"
	flagVideo         = "video"
	flagImage         = "image"
	flagDir           = "dir"
	flagConfidence    = "confidence"
	flagNMS           = "nms"
	flagClassAgnostic = "class-agnostic"
	flagClasses       = "classes"
	flagDropFrames    = "drop-frames"
	flagMaxFrames     = "max-frames"
	flagShowWindow    = "show-window"
	flagOutputDir     = "output-dir"
	flagSaveFrames    = "save-frames"
	flagLogLevel      = "log-level"
	flagProfile       = "profile"
	flagTrack         = "track"
	flagNumClasses    = "num-classes"
)

func main() {
	app := &cli.App{
		Name:  "detect",
		Usage: "run a YOLO detection model on frames from a camera, a video or still images",
		Commands: []*cli.Command{
			{
				Name:      "run",
				Usage:     "detect objects frame by frame",
				UsageText: "detect run [--config FILE] [--model FILE] [--device N | --video FILE | --image FILE | --dir DIR]",
				Flags:     runFlags(),
				Action:    runAction,
			},
			{
				Name:  "inspect",
				Usage: "print the inputs, outputs and detection layout of a model",
				Flags: []cli.Flag{
					&cli.StringFlag{
						Name:     flagModel,
						Aliases:  []string{"m"},
						Usage:    "ONNX model `FILE`",
						Required: true,
					},
					&cli.StringFlag{
						Name:    flagLibraryPath,
						Usage:   "onnxruntime shared library `FILE`",
						EnvVars: []string{"ONNXRUNTIME_LIB"},
					},
					&cli.IntFlag{
						Name:  flagNumClasses,
						Usage: "expected number of classes, 0 to infer from the output shape",
					},
				},
				Action: inspectAction,
			},
		},
	}

	if err := app.Run(os.Args); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func runFlags() []cli.Flag {
	return []cli.Flag{
		&cli.StringFlag{
			Name:    flagConfig,
			Aliases: []string{"c"},
			Usage:   "load configuration from `FILE`; flags override it",
		},
		&cli.StringFlag{
			Name:    flagModel,
			Aliases: []string{"m"},
			Usage:   "ONNX model `FILE`",
		},
		&cli.StringFlag{
			Name:  flagLabels,
			Usage: "label table: yolo, coco, voc or a `FILE` with one class name per line",
		},
		&cli.StringFlag{
			Name:    flagLibraryPath,
			Usage:   "onnxruntime shared library `FILE`",
			EnvVars: []string{"ONNXRUNTIME_LIB"},
		},
		&cli.IntFlag{
			Name:  flagDevice,
			Usage: "video capture device index",
		},
		&cli.StringFlag{
			Name:  flagVideo,
			Usage: "video `FILE` (.mp4, .avi, .mov, .mkv)",
		},
		&cli.StringFlag{
			Name:  flagImage,
			Usage: "image `FILE` (.jpg, .jpeg, .png, .bmp)",
		},
		&cli.StringFlag{
			Name:  flagDir,
			Usage: "`DIR` of images, processed in frame order",
		},
		&cli.Float64Flag{
			Name:  flagConfidence,
			Usage: "minimum confidence of a detection",
		},
		&cli.Float64Flag{
			Name:  flagNMS,
			Usage: "IoU above which overlapping detections are suppressed",
		},
		&cli.BoolFlag{
			Name:  flagClassAgnostic,
			Usage: "suppress overlapping detections across classes",
		},
		&cli.StringSliceFlag{
			Name:  flagClasses,
			Usage: "only report these class names",
		},
		&cli.BoolFlag{
			Name:  flagDropFrames,
			Usage: "skip frames while the detector is busy",
		},
		&cli.IntFlag{
			Name:  flagMaxFrames,
			Usage: "stop after this many frames",
		},
		&cli.BoolFlag{
			Name:  flagTrack,
			Usage: "assign track ids that persist across frames",
		},
		&cli.BoolFlag{
			Name:  flagShowWindow,
			Usage: "show annotated frames in a window; press q to quit",
		},
		&cli.StringFlag{
			Name:  flagOutputDir,
			Usage: "`DIR` for annotated frames",
		},
		&cli.BoolFlag{
			Name:  flagSaveFrames,
			Usage: "save annotated frames with detections to the output directory",
		},
		&cli.StringFlag{
			Name:  flagLogLevel,
			Usage: "log level: debug, info, warn or error",
		},
		&cli.BoolFlag{
			Name:  flagProfile,
			Usage: "log periodic runtime and timing reports",
		},
	}
}
