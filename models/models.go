// Package models - Label tables for detection model outputs.
package models

// ModelFamily is the family of models.
type ModelFamily string

const (
	// ModelFamilyCOCO is the 80 COCO classes + background.
	ModelFamilyCOCO ModelFamily = "coco"
	// ModelFamilyYOLO is the 80 COCO classes, no background.
	ModelFamilyYOLO ModelFamily = "yolo"
	// ModelFamilyVOC is the 20 Pascal VOC classes + background.
	ModelFamilyVOC ModelFamily = "voc"
	// ModelFamilyCustom is a label table loaded from a file.
	ModelFamilyCustom ModelFamily = "custom"
)
