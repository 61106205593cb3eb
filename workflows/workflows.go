package workflows

var TriggerableWorkflows = []any{
	JoinVideos,
}

var WorkerWorkflows = []any{
	JoinVideos,
}
