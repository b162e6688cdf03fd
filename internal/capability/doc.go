// Package capability names the downstream integration surfaces the
// orchestrator can invoke and maps task descriptions onto them. Adapters hide
// whether a capability is served by a warehouse, a webhook, or an in-process
// stub.
package capability
