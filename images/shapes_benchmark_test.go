package images

import (
	"image"
	"math/rand"
	"testing"
)

// randomBoxes returns n boxes of 20-320 pixels inside a 1920x1080 frame.
func randomBoxes(rng *rand.Rand, n int) []BoundingBox {
	boxes := make([]BoundingBox, n)
	for i := range boxes {
		boxes[i] = BoundingBox{
			Left:   float32(rng.Intn(1920)),
			Top:    float32(rng.Intn(1080)),
			Width:  float32(rng.Intn(300) + 20),
			Height: float32(rng.Intn(300) + 20),
		}
	}
	return boxes
}

func BenchmarkIoU(b *testing.B) {
	scenarios := []struct {
		name string
		a, c BoundingBox
	}{
		{"NoOverlap", BoundingBox{0, 0, 100, 100}, BoundingBox{200, 200, 100, 100}},
		{"TouchingEdge", BoundingBox{0, 0, 100, 100}, BoundingBox{100, 0, 100, 100}},
		{"HalfOverlap", BoundingBox{0, 0, 100, 100}, BoundingBox{50, 50, 100, 100}},
		{"FullOverlap", BoundingBox{50, 50, 100, 100}, BoundingBox{50, 50, 100, 100}},
		{"LargeBoxes", BoundingBox{0, 0, 1920, 1080}, BoundingBox{960, 540, 960, 540}},
		{"TinyBoxes", BoundingBox{10, 10, 2, 2}, BoundingBox{11, 11, 2, 2}},
	}

	for _, scenario := range scenarios {
		b.Run(scenario.name, func(b *testing.B) {
			b.ReportAllocs()
			for i := 0; i < b.N; i++ {
				_ = CalculateIoU(scenario.a, scenario.c)
			}
		})
	}
}

func BenchmarkIoU_RandomPairs(b *testing.B) {
	boxes := randomBoxes(rand.New(rand.NewSource(1)), 2000)

	b.ResetTimer()
	b.ReportAllocs()

	for i := 0; i < b.N; i++ {
		j := (2 * i) % len(boxes)
		_ = CalculateIoU(boxes[j], boxes[j+1])
	}
}

// BenchmarkIoU_AllPairs compares every pair of 100 boxes, the worst case of suppressing one class.
func BenchmarkIoU_AllPairs(b *testing.B) {
	boxes := randomBoxes(rand.New(rand.NewSource(2)), 100)

	b.ResetTimer()
	b.ReportAllocs()

	for i := 0; i < b.N; i++ {
		var total float32
		for j := range boxes {
			for k := j + 1; k < len(boxes); k++ {
				total += CalculateIoU(boxes[j], boxes[k])
			}
		}
		_ = total
	}
}

// BenchmarkImageRectangle_RandomPairs is the same workload on image.Rectangle for comparison.
func BenchmarkImageRectangle_RandomPairs(b *testing.B) {
	boxes := randomBoxes(rand.New(rand.NewSource(1)), 2000)
	rects := make([]image.Rectangle, len(boxes))
	for i, box := range boxes {
		rects[i] = box.ToRect()
	}

	b.ResetTimer()
	b.ReportAllocs()

	for i := 0; i < b.N; i++ {
		j := (2 * i) % len(rects)
		inter := rects[j].Intersect(rects[j+1])
		if inter.Empty() {
			continue
		}
		ia := inter.Dx() * inter.Dy()
		union := rects[j].Dx()*rects[j].Dy() + rects[j+1].Dx()*rects[j+1].Dy() - ia
		_ = float32(ia) / float32(union)
	}
}
