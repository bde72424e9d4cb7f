package obs

import "go.opentelemetry.io/otel/attribute"

func attrTenantID(tenantID string) attribute.KeyValue {
	return attribute.String("tenant_id", tenantID)
}

func attrGeneration(generation uint64) attribute.KeyValue {
	return attribute.Int64("generation", int64(generation))
}

func attrOpName(opName string) attribute.KeyValue {
	return attribute.String("op_name", opName)
}
