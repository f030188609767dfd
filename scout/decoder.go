package scout

import (
	"encoding/json"
	"fmt"
	"math"
)

// DecodePose parses a pose payload. Two shapes are accepted: the flat
// {"x","y","heading"} form published by tudoscout bridges, and the Lokarria
// localization document with a position and orientation quaternion.
func DecodePose(payload []byte) (Pose, error) {
	var probe map[string]json.RawMessage
	if err := json.Unmarshal(payload, &probe); err != nil {
		return Pose{}, fmt.Errorf("decode pose: %w", err)
	}

	var pose Pose
	if _, ok := probe["Pose"]; ok {
		var loc localizationResponse
		if err := json.Unmarshal(payload, &loc); err != nil {
			return Pose{}, fmt.Errorf("decode localization: %w", err)
		}
		q := loc.Pose.Orientation
		pose = Pose{X: loc.Pose.Position.X, Y: loc.Pose.Position.Y, Heading: QuaternionHeading(q.W, q.X, q.Y, q.Z)}
	} else {
		_, hasX := probe["x"]
		_, hasY := probe["y"]
		if !hasX || !hasY {
			return Pose{}, fmt.Errorf("decode pose: missing x or y")
		}
		if err := json.Unmarshal(payload, &pose); err != nil {
			return Pose{}, fmt.Errorf("decode pose: %w", err)
		}
	}

	for _, v := range []float64{pose.X, pose.Y, pose.Heading} {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return Pose{}, fmt.Errorf("decode pose: non-finite value in %+v", pose)
		}
	}
	return pose, nil
}

// DecodeScan parses a scan payload: either {"angles","distances"} or a bare
// Lokarria echoes document, whose angles come from laser.
func DecodeScan(payload []byte, laser LaserProperties) (Scan, error) {
	var probe map[string]json.RawMessage
	if err := json.Unmarshal(payload, &probe); err != nil {
		return Scan{}, fmt.Errorf("decode scan: %w", err)
	}

	var scan Scan
	if _, ok := probe["Echoes"]; ok {
		var echoes echoesResponse
		if err := json.Unmarshal(payload, &echoes); err != nil {
			return Scan{}, fmt.Errorf("decode echoes: %w", err)
		}
		if n := laser.Beams(); n != len(echoes.Echoes) {
			return Scan{}, fmt.Errorf("decode echoes: got %d echoes, laser has %d beams", len(echoes.Echoes), n)
		}
		scan = NewSweepScan(laser.StartAngle, laser.AngleIncrement, echoes.Echoes)
		scan.Timestamp = echoes.Timestamp
	} else if err := json.Unmarshal(payload, &scan); err != nil {
		return Scan{}, fmt.Errorf("decode scan: %w", err)
	}

	if err := scan.Validate(); err != nil {
		return Scan{}, fmt.Errorf("decode scan: %w", err)
	}
	return scan, nil
}
