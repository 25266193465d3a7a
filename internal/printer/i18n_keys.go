package printer

const (
	keyResultStatus      = "cli.result.status"
	keyResultTime        = "cli.result.time"
	keyResultSize        = "cli.result.size"
	keyResultEnvironment = "cli.result.environment"
	keyResultFailed      = "cli.result.failed"
	keyPreviewTitle      = "cli.preview.title"
	keyPreviewAuth       = "cli.preview.auth"
	keyPreviewUnresolved = "cli.preview.unresolved"
	keyHistoryEmpty      = "cli.history.empty"
	keyHistoryWhen       = "cli.history.when"
	keyHistoryMethod     = "cli.history.method"
	keyHistoryStatus     = "cli.history.status"
	keyHistoryTime       = "cli.history.time"
	keyHistoryURL        = "cli.history.url"
	keyHistoryTotal      = "cli.history.total"
	keyTreeEmpty         = "cli.tree.empty"
	keyTreeSummary       = "cli.tree.summary"
	keyEnvEmpty          = "cli.env.empty"
	keyEnvVariables      = "cli.env.variables"
	keyEnvNoneActive     = "cli.env.none_active"
	keySnapshotsEmpty    = "cli.snapshots.empty"
	keySnapshotsID       = "cli.snapshots.id"
	keySnapshotsReason   = "cli.snapshots.reason"
	keySnapshotsSize     = "cli.snapshots.size"
	keyHeadersRedacted   = "cli.headers.redacted"
	keyBodyEmpty         = "cli.body.empty"
	keyBodyTruncate      = "cli.body.truncate_hint"
	keyBodyBinarySummary = "cli.body.binary_summary"
	keyBodyHexTitle      = "cli.body.hex_preview_title"
	keyJSONIndentSkipped = "cli.json.indent_skipped"
	keyFormTitle         = "cli.form.title"
	keyFormKeyHeader     = "cli.form.key_header"
	keyFormValueHeader   = "cli.form.value_header"
)
