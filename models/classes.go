package models

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/pkg/errors"
)

// OutputClass represents one detection label.
type OutputClass struct {
	// The integer index returned by the model.
	Index int
	// The human-readable label.
	Name string
}

// OutputClassSet is the label table of a model: class id i names Classes[i].
//
// A set is read-only once built and safe for concurrent use.
type OutputClassSet struct {
	// Class set identifier.
	Style ModelFamily
	// Classes that are supported and mappable.
	Classes []OutputClass
	// nameToIdx for fast lookup by name
	nameToIdx map[string]int
}

// NewOutputClassSet builds a set whose class ids follow the order of names.
func NewOutputClassSet(style ModelFamily, names ...string) OutputClassSet {
	set := OutputClassSet{
		Style:   style,
		Classes: make([]OutputClass, len(names)),
	}
	for i, name := range names {
		set.Classes[i] = OutputClass{Index: i, Name: name}
	}
	set.BuildNameIndexMap()
	return set
}

// BuildNameIndexMap builds or rebuilds the name->index map.
func (s *OutputClassSet) BuildNameIndexMap() {
	s.nameToIdx = make(map[string]int, len(s.Classes))
	for _, c := range s.Classes {
		if _, dup := s.nameToIdx[c.Name]; !dup {
			s.nameToIdx[c.Name] = c.Index
		}
	}
}

// Len returns the number of classes.
func (s OutputClassSet) Len() int {
	return len(s.Classes)
}

// Name returns the label of class idx, or "class <idx>" when the table has no such entry.
func (s OutputClassSet) Name(idx int) string {
	if idx < 0 || idx >= len(s.Classes) {
		return fmt.Sprintf("class %d", idx)
	}
	return s.Classes[idx].Name
}

// Index returns the class id for name.
func (s OutputClassSet) Index(name string) (int, bool) {
	if s.nameToIdx == nil {
		for _, c := range s.Classes {
			if c.Name == name {
				return c.Index, true
			}
		}
		return -1, false
	}
	idx, ok := s.nameToIdx[name]
	return idx, ok
}

// ClassIDs resolves class names to a set of class ids, as used for relevant-class filtering.
//
// Arguments:
//   - names: Class names, e.g. "person", "car".
//
// Returns:
//   - map[int]bool: The ids of the named classes. Empty when names is empty.
//   - error: An error naming the first unknown class.
//
// @example
// relevant, err := YOLOClasses.ClassIDs([]string{"person", "car"}) // {0: true, 2: true}
func (s OutputClassSet) ClassIDs(names []string) (map[int]bool, error) {
	ids := make(map[int]bool, len(names))
	for _, name := range names {
		idx, ok := s.Index(strings.TrimSpace(name))
		if !ok {
			return nil, errors.Errorf("class %q not found in %q labels", name, s.Style)
		}
		ids[idx] = true
	}
	return ids, nil
}

// LoadClasses reads a label file: UTF-8 text with one class name per line.
//
// Line i (zero-based) names class id i. CRLF line endings are accepted and trailing blank
// lines are ignored. A blank line between names is an error, since it would shift every
// following class id.
//
// Arguments:
//   - r: The label file contents.
//   - style: The family recorded on the returned set.
//
// Returns:
//   - OutputClassSet: The loaded label table.
//   - error: An error if reading fails, the file is empty or has an interior blank line.
func LoadClasses(r io.Reader, style ModelFamily) (OutputClassSet, error) {
	var names []string
	blank := 0

	scanner := bufio.NewScanner(r)
	for scanner.Scan() {
		name := strings.TrimSpace(scanner.Text())
		if name == "" {
			blank++
			continue
		}
		if blank > 0 {
			return OutputClassSet{}, errors.Errorf("blank line before class %d (%q)", len(names), name)
		}
		names = append(names, name)
	}
	if err := scanner.Err(); err != nil {
		return OutputClassSet{}, errors.Wrap(err, "failed to read labels")
	}
	if len(names) == 0 {
		return OutputClassSet{}, errors.New("label file has no classes")
	}

	return NewOutputClassSet(style, names...), nil
}

// LoadClassesFile reads a label file from disk. See LoadClasses.
func LoadClassesFile(path string, style ModelFamily) (OutputClassSet, error) {
	f, err := os.Open(path)
	if err != nil {
		return OutputClassSet{}, errors.Wrapf(err, "failed to open labels %q", path)
	}
	defer f.Close()

	set, err := LoadClasses(f, style)
	if err != nil {
		return OutputClassSet{}, errors.Wrapf(err, "labels %q", path)
	}
	return set, nil
}

// COCOClasses is the full 80 COCO classes plus "__background__" at index 0.
var COCOClasses = OutputClassSet{
	Style: ModelFamilyCOCO,
	Classes: []OutputClass{
		{0, "__background__"},
		{1, "person"},
		{2, "bicycle"},
		{3, "car"},
		{4, "motorcycle"},
		{5, "airplane"},
		{6, "bus"},
		{7, "train"},
		{8, "truck"},
		{9, "boat"},
		{10, "traffic light"},
		{11, "fire hydrant"},
		{12, "stop sign"},
		{13, "parking meter"},
		{14, "bench"},
		{15, "bird"},
		{16, "cat"},
		{17, "dog"},
		{18, "horse"},
		{19, "sheep"},
		{20, "cow"},
		{21, "elephant"},
		{22, "bear"},
		{23, "zebra"},
		{24, "giraffe"},
		{25, "backpack"},
		{26, "umbrella"},
		{27, "handbag"},
		{28, "tie"},
		{29, "suitcase"},
		{30, "frisbee"},
		{31, "skis"},
		{32, "snowboard"},
		{33, "sports ball"},
		{34, "kite"},
		{35, "baseball bat"},
		{36, "baseball glove"},
		{37, "skateboard"},
		{38, "surfboard"},
		{39, "tennis racket"},
		{40, "bottle"},
		{41, "wine glass"},
		{42, "cup"},
		{43, "fork"},
		{44, "knife"},
		{45, "spoon"},
		{46, "bowl"},
		{47, "banana"},
		{48, "apple"},
		{49, "sandwich"},
		{50, "orange"},
		{51, "broccoli"},
		{52, "carrot"},
		{53, "hot dog"},
		{54, "pizza"},
		{55, "donut"},
		{56, "cake"},
		{57, "chair"},
		{58, "couch"},
		{59, "potted plant"},
		{60, "bed"},
		{61, "dining table"},
		{62, "toilet"},
		{63, "tv"},
		{64, "laptop"},
		{65, "mouse"},
		{66, "remote"},
		{67, "keyboard"},
		{68, "cell phone"},
		{69, "microwave"},
		{70, "oven"},
		{71, "toaster"},
		{72, "sink"},
		{73, "refrigerator"},
		{74, "book"},
		{75, "clock"},
		{76, "vase"},
		{77, "scissors"},
		{78, "teddy bear"},
		{79, "hair drier"},
		{80, "toothbrush"},
	},
}

// YOLOClasses is the 80 COCO classes (no background).
// YOLO models index directly into this zero-based list.
var YOLOClasses = OutputClassSet{
	Style: ModelFamilyYOLO,
	Classes: func() []OutputClass {
		classes := make([]OutputClass, len(COCOClasses.Classes)-1) // drop background
		for i := 1; i < len(COCOClasses.Classes); i++ {
			classes[i-1] = OutputClass{i - 1, COCOClasses.Classes[i].Name}
		}
		return classes
	}(),
}

// PascalVOCClasses is the 20 Pascal VOC classes + "__background__" at index 0.
var PascalVOCClasses = OutputClassSet{
	Style: ModelFamilyVOC,
	Classes: []OutputClass{
		{0, "__background__"},
		{1, "aeroplane"},
		{2, "bicycle"},
		{3, "bird"},
		{4, "boat"},
		{5, "bottle"},
		{6, "bus"},
		{7, "car"},
		{8, "cat"},
		{9, "chair"},
		{10, "cow"},
		{11, "diningtable"},
		{12, "dog"},
		{13, "horse"},
		{14, "motorbike"},
		{15, "person"},
		{16, "pottedplant"},
		{17, "sheep"},
		{18, "sofa"},
		{19, "train"},
		{20, "tvmonitor"},
	},
}

// AllClassSets collects every built-in OutputClassSet in one place.
var AllClassSets = []OutputClassSet{
	COCOClasses,
	YOLOClasses,
	PascalVOCClasses,
}

// ClassSetByName returns the built-in set of the given family.
func ClassSetByName(style ModelFamily) (OutputClassSet, bool) {
	for _, set := range AllClassSets {
		if set.Style == style {
			set.BuildNameIndexMap()
			return set, true
		}
	}
	return OutputClassSet{}, false
}

// ResolveClasses loads labels from a built-in family name ("yolo", "coco", "voc") or, failing
// that, from a label file path. An empty source selects YOLOClasses.
func ResolveClasses(source string) (OutputClassSet, error) {
	if source == "" {
		source = string(ModelFamilyYOLO)
	}
	if set, ok := ClassSetByName(ModelFamily(strings.ToLower(source))); ok {
		return set, nil
	}
	return LoadClassesFile(source, ModelFamilyCustom)
}
