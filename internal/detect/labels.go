package detect

import "fmt"

// COCO class IDs the SSD MobileNet model emits. Anything not listed comes back
// as "unknown_<id>" so the policy can still threshold on it explicitly.
var cocoLabels = map[int]string{
	1:  "person",
	2:  "bicycle",
	3:  "car",
	4:  "motorcycle",
	5:  "airplane",
	6:  "bus",
	8:  "truck",
	16: "bird",
	17: "cat",
	18: "dog",
}

func classLabel(classID int) string {
	if label, ok := cocoLabels[classID]; ok {
		return label
	}
	return fmt.Sprintf("unknown_%d", classID)
}
