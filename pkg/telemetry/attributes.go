// Copyright 2026 © The Rolecast Authors
// SPDX-License-Identifier: Apache-2.0

package telemetry

import (
	"sort"

	"go.opentelemetry.io/otel/attribute"
)

// Attribute keys shared by spans and metrics.
const (
	// Bandit attributes
	AttrBanditArmCount = "rolecast.bandit.arm_count"
	AttrBanditArm      = "rolecast.bandit.arm"
	AttrBanditExplored = "rolecast.bandit.explored"
	AttrBanditEpsilon  = "rolecast.bandit.epsilon"
	AttrBanditReward   = "rolecast.bandit.reward"
	AttrBanditRestore  = "rolecast.bandit.restore_outcome"
	AttrBanditStore    = "rolecast.bandit.store"

	// Role attributes
	AttrRoleName     = "rolecast.role.name"
	AttrRoleEvidence = "rolecast.role.evidence"
	AttrRoleQuery    = "rolecast.role.query"

	// Error attributes
	AttrErrorCode   = "error.code"
	AttrComponent   = "component"
	AttrRecoverable = "recoverable"
)

// SelectionAttributes returns attributes for an arm selection.
func SelectionAttributes(armCount, arm int, explored bool) []attribute.KeyValue {
	return []attribute.KeyValue{
		attribute.Int(AttrBanditArmCount, armCount),
		attribute.Int(AttrBanditArm, arm),
		attribute.Bool(AttrBanditExplored, explored),
	}
}

// UpdateAttributes returns attributes for a reward update span.
func UpdateAttributes(armCount, arm int, reward float64) []attribute.KeyValue {
	return []attribute.KeyValue{
		attribute.Int(AttrBanditArmCount, armCount),
		attribute.Int(AttrBanditArm, arm),
		attribute.Float64(AttrBanditReward, reward),
	}
}

// EvidenceAttributes returns the evidence as sorted "variable=state" pairs and
// the inferred role when known.
func EvidenceAttributes(evidence map[string]string, role string) []attribute.KeyValue {
	pairs := make([]string, 0, len(evidence))
	for name, state := range evidence {
		pairs = append(pairs, name+"="+state)
	}
	sort.Strings(pairs)

	attrs := []attribute.KeyValue{}
	if len(pairs) > 0 {
		attrs = append(attrs, attribute.StringSlice(AttrRoleEvidence, pairs))
	}
	if role != "" {
		attrs = append(attrs, attribute.String(AttrRoleName, role))
	}
	return attrs
}
