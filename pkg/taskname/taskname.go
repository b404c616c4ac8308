package taskname

const (
	// Conversion tasks
	ConversionDistribute = "conversion:distribute"
)

const (
	QueueCritical = "critical"
	QueueDefault  = "default"
	QueueLow      = "low"
)
