// Package observability provides metrics and logging utilities.
package observability

import (
	"fmt"
	"strings"

	"go.opentelemetry.io/otel/attribute"
)

// Attribute keys
const (
	attrMethod  = "method"
	attrPath    = "path"
	attrStatus  = "status"
	attrLane    = "lane"
	attrOutcome = "outcome"
	attrSuccess = "success"
)

func methodAttr(method string) attribute.KeyValue {
	return attribute.String(attrMethod, method)
}

func pathAttr(path string) attribute.KeyValue {
	return attribute.String(attrPath, normalizePath(path))
}

func statusAttr(code int) attribute.KeyValue {
	// Group status codes to reduce cardinality: 200-299 -> 2xx, etc.
	return attribute.String(attrStatus, fmt.Sprintf("%dxx", code/100))
}

func laneAttr(lane string) attribute.KeyValue {
	return attribute.String(attrLane, lane)
}

func outcomeAttr(outcome string) attribute.KeyValue {
	return attribute.String(attrOutcome, outcome)
}

func successAttr(success bool) attribute.KeyValue {
	return attribute.Bool(attrSuccess, success)
}

// normalizePath replaces dynamic path segments with placeholders so metric
// cardinality stays bounded.
//
//	/v1/lanes/separation/jobs/4f6b... -> /v1/lanes/{lane}/jobs/{jobId}
//	/v1/reminders/abc123/confirm     -> /v1/reminders/{deliveryId}/confirm
func normalizePath(path string) string {
	parts := strings.Split(path, "/")
	if len(parts) >= 4 && parts[1] == "v1" && parts[2] == "lanes" {
		parts[3] = "{lane}"
		if len(parts) >= 6 && parts[4] == "jobs" {
			parts[5] = "{jobId}"
		}
		return strings.Join(parts, "/")
	}
	if len(parts) >= 4 && parts[1] == "v1" && parts[2] == "reminders" {
		parts[3] = "{deliveryId}"
		return strings.Join(parts, "/")
	}
	return path
}
