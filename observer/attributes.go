package observer

import "go.opentelemetry.io/otel/attribute"

// Attribute keys for workflow/step/container observability spans and
// metrics.
var (
	AttrWorkflowName    = attribute.Key("workflow.name")
	AttrWorkflowVersion = attribute.Key("workflow.version")
	AttrRunID           = attribute.Key("run.id")

	AttrStepName   = attribute.Key("step.name")
	AttrStepStatus = attribute.Key("step.status")

	AttrContainerImage    = attribute.Key("container.image")
	AttrContainerExitCode = attribute.Key("container.exit_code")
)
