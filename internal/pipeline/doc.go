// Package pipeline drives the three analysis stages of a dependency upgrade.
//
// # Stages
//
// [Orchestrator.Run] calls the planner, the parser and the codemod agent in
// that order. Each stage talks to its own agent application in its own
// session; session ids are generated per run and prefixed with the stage
// name, so state never carries over between stages or between runs.
//
//	plan ──▶ parse ──▶ codemod ──▶ done
//	  │
//	  └── no next_agent_instructions ──▶ done (plan only)
//
// # Results
//
// Every stage result is tagged with a [Variant]. Agent replies are decoded
// into typed results ([PlanResult], [ParseResult], [CodemodResult]) with a
// strict schema; a JSON reply that does not fit the schema becomes
// [VariantFallback], prose becomes [VariantFallback] and an unrecognizable
// reply becomes [VariantError]. The raw [agent.Response] is kept on every
// result.
//
// A failed agent call (transport error, non-2xx status, timeout) is fatal:
// Run returns a *errors.StageError naming the stage and no later stage runs.
//
// # Usage
//
//	o := pipeline.NewOrchestrator(agentClient, pipeline.Config{UserID: "botdas"},
//	    pipeline.WithLogger(logger))
//	result, err := o.Run(ctx, pipeline.Request{Tree: root, TargetPackage: "next"})
package pipeline
