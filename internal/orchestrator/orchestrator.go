package orchestrator

import (
	"context"
	"fmt"
	"io"
	"regexp"
	"strings"

	"github.com/lucasnoah/greenlight/internal/ci"
	"github.com/lucasnoah/greenlight/internal/classify"
	"github.com/lucasnoah/greenlight/internal/config"
	"github.com/lucasnoah/greenlight/internal/db"
	"github.com/lucasnoah/greenlight/internal/dispatch"
	"github.com/lucasnoah/greenlight/internal/ecosystem"
	"github.com/lucasnoah/greenlight/internal/gate"
	"github.com/lucasnoah/greenlight/internal/gitops"
	"github.com/lucasnoah/greenlight/internal/monitor"
	"github.com/lucasnoah/greenlight/internal/state"
)

// Controller drives one submission end to end: local gate, fix loop,
// commit, remote CI watch, and remediation. Every phase move is persisted
// before the side effects of that phase run, so a crash at any point
// resumes from a consistent position.
type Controller struct {
	store      *state.Store
	db         *db.DB
	gate       *gate.Runner
	dispatcher *dispatch.Dispatcher
	repo       *gitops.Repo
	provider   ci.Provider
	mon        *monitor.Monitor
	cfg        *config.Config
	kind       ecosystem.Kind
	progress   io.Writer
}

// NewController creates a Controller.
func NewController(
	store *state.Store,
	database *db.DB,
	gateRunner *gate.Runner,
	dispatcher *dispatch.Dispatcher,
	repo *gitops.Repo,
	provider ci.Provider,
	mon *monitor.Monitor,
	cfg *config.Config,
	kind ecosystem.Kind,
) *Controller {
	return &Controller{
		store:      store,
		db:         database,
		gate:       gateRunner,
		dispatcher: dispatcher,
		repo:       repo,
		provider:   provider,
		mon:        mon,
		cfg:        cfg,
		kind:       kind,
	}
}

// SetProgress sets a writer for live progress output (e.g. os.Stderr).
func (c *Controller) SetProgress(w io.Writer) {
	c.progress = w
}

func (c *Controller) logf(format string, args ...interface{}) {
	if c.progress != nil {
		fmt.Fprintf(c.progress, "→ "+format+"\n", args...)
	}
}

// SubmitOpts configures a submission.
type SubmitOpts struct {
	Message   string
	Amend     bool
	DryRun    bool // gate only: no state, no commit, no push
	ForceGate bool // run even with a clean working tree
	NoFix     bool // report gate issues without attempting fixes
}

// Report is the terminal summary of an orchestration.
type Report struct {
	ID             string             `json:"id"`
	Phase          state.Phase        `json:"phase"`
	Reason         string             `json:"reason"`
	CommitSHA      string             `json:"commit_sha,omitempty"`
	LocalAttempts  int                `json:"local_attempts"`
	RemoteAttempts int                `json:"remote_attempts"`
	Issues         []gate.Issue       `json:"issues,omitempty"`
	AppliedFixes   []state.AppliedFix `json:"applied_fixes,omitempty"`
	Transitions    []state.Transition `json:"transitions,omitempty"`
	NextAction     string             `json:"next_action,omitempty"`
}

// Succeeded reports whether the orchestration ended green.
func (r *Report) Succeeded() bool {
	return r.Phase == state.PhaseSucceeded
}

// Submit runs a full submission for the repo's working tree.
func (c *Controller) Submit(ctx context.Context, opts SubmitOpts) (*Report, error) {
	if opts.DryRun {
		return c.dryRun()
	}

	dirty, err := c.repo.HasChanges()
	if err != nil {
		return nil, err
	}
	if !dirty && !opts.Amend && !opts.ForceGate {
		return nil, fmt.Errorf("working tree is clean: nothing to submit (use --amend to re-submit HEAD)")
	}

	branch, err := c.repo.CurrentBranch()
	if err != nil {
		return nil, err
	}

	st, err := c.store.Create(state.CreateOpts{
		Workdir:   c.repo.Dir(),
		Branch:    branch,
		Ecosystem: string(c.kind),
		MaxLocal:  c.cfg.Greenlight.Budgets.MaxLocalFixes,
		MaxRemote: c.cfg.Greenlight.Budgets.MaxRemoteFixes,
	})
	if err != nil {
		return nil, fmt.Errorf("create orchestration: %w", err)
	}
	_ = c.db.LogEvent(st.ID, "created", string(st.Phase), branch)
	c.logf("orchestration %s started on branch %s", st.ID, branch)

	return c.run(ctx, st, opts)
}

// Resume continues an interrupted orchestration from its persisted phase.
func (c *Controller) Resume(ctx context.Context, id string) (*Report, error) {
	st, err := c.store.Get(id)
	if err != nil {
		return nil, err
	}
	if st.Phase.Terminal() {
		return c.report(st), nil
	}

	_ = c.db.LogEvent(id, "resumed", string(st.Phase), "")
	c.logf("resuming orchestration %s from phase %s", id, st.Phase)

	opts := SubmitOpts{Message: st.CommitMessage}
	return c.run(ctx, st, opts)
}

// run advances the state machine from wherever st currently is.
func (c *Controller) run(ctx context.Context, st *state.OrchestrationState, opts SubmitOpts) (*Report, error) {
	switch st.Phase {
	case state.PhaseIdle, state.PhaseGating, state.PhaseFixing:
		var cont bool
		var err error
		st, cont, err = c.localLoop(ctx, st, opts)
		if err != nil {
			return nil, err
		}
		if !cont {
			return c.finish(st)
		}
		st, err = c.commitAndPush(st, opts.Message, opts.Amend)
		if err != nil {
			return nil, err
		}

	case state.PhaseCommitting:
		var err error
		st, err = c.commitAndPush(st, opts.Message, opts.Amend)
		if err != nil {
			return nil, err
		}

	case state.PhaseMonitoring, state.PhaseRemediating:
		// fall through to the monitor loop below

	default:
		return nil, fmt.Errorf("cannot run from phase %s", st.Phase)
	}

	if st.CommitSHA == "" {
		return nil, fmt.Errorf("orchestration %s has no commit to monitor", st.ID)
	}
	return c.monitorLoop(ctx, st, opts)
}

// Gate runs the local quality gate once without touching any state.
func (c *Controller) Gate(applyFixes bool) (*gate.Result, error) {
	return c.gate.Run(c.repo.Dir(), c.gateOptions(applyFixes))
}

// dryRun evaluates the gate without creating state or mutating anything.
func (c *Controller) dryRun() (*Report, error) {
	res, err := c.gate.Run(c.repo.Dir(), c.gateOptions(false))
	if err != nil {
		return nil, err
	}
	report := &Report{Issues: res.Issues}
	if res.Passed {
		report.Reason = "dry run: gate passed"
	} else {
		report.Reason = fmt.Sprintf("dry run: gate failed with %d issues", len(res.Issues))
	}
	return report, nil
}

// move persists a phase transition. A persistence failure here is fatal:
// continuing with unrecorded state would make crash recovery lie.
func (c *Controller) move(st *state.OrchestrationState, to state.Phase, reason string) (*state.OrchestrationState, error) {
	updated, err := c.store.Update(st.ID, func(o *state.OrchestrationState) {
		o.MoveTo(to, reason)
		if to.Terminal() {
			o.TerminalReason = reason
		}
	})
	if err != nil {
		return nil, fmt.Errorf("persist phase %s: %w", to, err)
	}
	_ = c.db.LogEvent(st.ID, "phase_change", string(to), reason)
	c.logf("phase: %s (%s)", to, reason)
	return updated, nil
}

// localLoop alternates gate runs and fix rounds until the gate passes,
// the budget runs out, or an unfixable issue appears. The bool result is
// false when the orchestration reached a terminal phase.
func (c *Controller) localLoop(ctx context.Context, st *state.OrchestrationState, opts SubmitOpts) (*state.OrchestrationState, bool, error) {
	for {
		var err error
		st, err = c.move(st, state.PhaseGating, fmt.Sprintf("gate round %d", st.LocalAttempts))
		if err != nil {
			return nil, false, err
		}

		res, err := c.gate.Run(c.repo.Dir(), c.gateOptions(c.cfg.Greenlight.Gate.AutoFixEnabled()))
		if err != nil {
			return nil, false, fmt.Errorf("run gate: %w", err)
		}
		round := st.LocalAttempts
		c.recordGate(st, round, res)

		st, err = c.store.Update(st.ID, func(o *state.OrchestrationState) {
			o.LastGate = res
		})
		if err != nil {
			return nil, false, fmt.Errorf("persist gate result: %w", err)
		}

		if res.Passed {
			c.logf("gate passed after %d fix rounds", round)
			return st, true, nil
		}

		if opts.NoFix {
			st, err = c.move(st, state.PhaseBlocked, fmt.Sprintf("gate failed with %d issues (fixes disabled)", len(res.Issues)))
			return st, false, err
		}
		if st.LocalAttempts >= st.MaxLocal {
			st, err = c.move(st, state.PhaseBlocked, fmt.Sprintf("local fix budget exhausted after %d rounds; %d issues remain", st.LocalAttempts, len(res.Issues)))
			return st, false, err
		}

		categories := uniqueCategories(res.Issues)
		for _, cat := range categories {
			if _, ok := c.dispatcher.ActionFor(cat); !ok {
				st, err = c.move(st, state.PhaseBlocked, fmt.Sprintf("unrecognized failure category %q requires human attention", cat))
				return st, false, err
			}
		}

		st, err = c.move(st, state.PhaseFixing, fmt.Sprintf("%d issues across %d categories", len(res.Issues), len(categories)))
		if err != nil {
			return nil, false, err
		}

		for _, cat := range categories {
			action, _ := c.dispatcher.ActionFor(cat)
			req := requestFor(cat, res.Issues)
			outcome, err := c.dispatcher.Apply(ctx, c.repo.Dir(), action, req)
			if err != nil {
				return nil, false, fmt.Errorf("apply fix for %s: %w", cat, err)
			}
			st, err = c.recordFix(st, "local", action, outcome)
			if err != nil {
				return nil, false, err
			}
		}

		st, err = c.store.Update(st.ID, func(o *state.OrchestrationState) {
			o.LocalAttempts++
		})
		if err != nil {
			return nil, false, fmt.Errorf("persist attempt count: %w", err)
		}
	}
}

// commitAndPush commits the working tree and pushes the branch. The
// committing phase is persisted before the commit so a crash in between
// is visible on resume.
func (c *Controller) commitAndPush(st *state.OrchestrationState, message string, amend bool) (*state.OrchestrationState, error) {
	reason := "gate passed"
	if amend {
		reason = "amending previous commit"
	}
	st, err := c.move(st, state.PhaseCommitting, reason)
	if err != nil {
		return nil, err
	}

	dirty, err := c.repo.HasChanges()
	if err != nil {
		return nil, err
	}
	if dirty {
		if amend {
			if err := c.repo.AmendCommit(); err != nil {
				return nil, err
			}
		} else {
			msg := message
			if msg == "" {
				msg = "Apply validated changes"
			}
			if prefix := c.cfg.Greenlight.Commit.MessagePrefix; prefix != "" {
				msg = prefix + msg
			}
			if err := c.repo.CommitAll(msg); err != nil {
				return nil, err
			}
			message = msg
		}
	}

	sha, err := c.repo.Head()
	if err != nil {
		return nil, err
	}
	if amend {
		err = c.repo.ForcePush(st.Branch)
	} else {
		err = c.repo.Push(st.Branch)
	}
	if err != nil {
		return nil, err
	}
	c.logf("pushed %s to %s", shortSHA(sha), st.Branch)

	st, err = c.store.Update(st.ID, func(o *state.OrchestrationState) {
		o.CommitSHA = sha
		if message != "" {
			o.CommitMessage = message
		}
	})
	if err != nil {
		return nil, fmt.Errorf("persist commit: %w", err)
	}
	_ = c.db.LogEvent(st.ID, "pushed", string(st.Phase), sha)
	return st, nil
}

// monitorLoop watches remote CI and remediates failures until the commit
// is green, a budget or ceiling trips, or the failure is unclassifiable.
func (c *Controller) monitorLoop(ctx context.Context, st *state.OrchestrationState, opts SubmitOpts) (*Report, error) {
	for {
		var err error
		st, err = c.move(st, state.PhaseMonitoring, fmt.Sprintf("watching CI for %s", shortSHA(st.CommitSHA)))
		if err != nil {
			return nil, err
		}

		outcome, err := c.mon.Watch(ctx, st.CommitSHA)
		if err != nil {
			return nil, fmt.Errorf("watch CI: %w", err)
		}

		// Every run observed for the commit joins its durable run set,
		// whatever the verdict.
		if len(outcome.RunIDs) > 0 {
			st, err = c.store.Update(st.ID, func(o *state.OrchestrationState) {
				for _, id := range outcome.RunIDs {
					o.RecordRun(o.CommitSHA, id)
				}
			})
			if err != nil {
				return nil, fmt.Errorf("persist observed runs: %w", err)
			}
		}

		switch outcome.Verdict {
		case monitor.VerdictSuccess:
			st, err = c.move(st, state.PhaseSucceeded, "all CI runs green")
			if err != nil {
				return nil, err
			}
			return c.finish(st)

		case monitor.VerdictTimeout:
			reason := fmt.Sprintf("CI did not settle within %s (%d runs pending)", c.mon.Ceiling, len(outcome.Pending))
			st, err = c.move(st, state.PhaseTimedOut, reason)
			if err != nil {
				return nil, err
			}
			return c.finish(st)

		case monitor.VerdictCancelled:
			st, err = c.move(st, state.PhaseCancelled, "interrupted while monitoring")
			if err != nil {
				return nil, err
			}
			return c.finish(st)
		}

		// CI failure: classify, remediate, amend, re-watch.
		failedRun := outcome.FailedRun
		attempt := st.RemoteAttempts + 1
		_ = c.store.SaveFailureLog(st.ID, attempt, outcome.Logs)

		cls := classify.Classify(outcome.Logs)
		st, err = c.store.Update(st.ID, func(o *state.OrchestrationState) {
			o.LastFailure = &cls
		})
		if err != nil {
			return nil, fmt.Errorf("persist failure: %w", err)
		}
		c.logf("CI run failed, classified as %s (confidence %.2f)", cls.Category, cls.Confidence)

		if st.RemoteAttempts >= st.MaxRemote {
			st, err = c.move(st, state.PhaseTimedOut, fmt.Sprintf("remote fix budget exhausted after %d attempts; last failure: %s", st.RemoteAttempts, cls.Category))
			if err != nil {
				return nil, err
			}
			return c.finish(st)
		}
		if cls.Category == classify.Unknown {
			st, err = c.move(st, state.PhaseBlocked, "unclassifiable CI failure requires human attention")
			if err != nil {
				return nil, err
			}
			return c.finish(st)
		}

		st, err = c.move(st, state.PhaseRemediating, fmt.Sprintf("attempt %d/%d for %s", attempt, st.MaxRemote, cls.Category))
		if err != nil {
			return nil, err
		}

		action, ok := c.dispatcher.ActionFor(cls.Category)
		if !ok {
			st, err = c.move(st, state.PhaseBlocked, fmt.Sprintf("no remediation mapped for category %q", cls.Category))
			if err != nil {
				return nil, err
			}
			return c.finish(st)
		}

		fixOutcome, err := c.dispatcher.Apply(ctx, c.repo.Dir(), action, dispatch.Request{
			Classification: cls,
			Evidence:       cls.Evidence,
		})
		if err != nil {
			return nil, fmt.Errorf("apply remediation: %w", err)
		}
		st, err = c.recordFix(st, "remote", action, fixOutcome)
		if err != nil {
			return nil, err
		}
		st, err = c.store.Update(st.ID, func(o *state.OrchestrationState) {
			o.RemoteAttempts++
		})
		if err != nil {
			return nil, fmt.Errorf("persist attempt count: %w", err)
		}

		dirty, err := c.repo.HasChanges()
		if err != nil {
			return nil, err
		}
		if !dirty {
			// The fix changed nothing. Re-running the failed jobs covers
			// flaky failures; anything persistent will fail again and
			// burn the remote budget down to timed_out.
			if failedRun != nil {
				c.logf("no local changes, re-running failed CI jobs")
				if err := c.provider.Rerun(failedRun.ID, true); err != nil {
					return nil, fmt.Errorf("rerun failed jobs: %w", err)
				}
			}
			continue
		}

		// Re-validate locally before force-pushing the amended commit.
		var cont bool
		st, cont, err = c.localLoop(ctx, st, opts)
		if err != nil {
			return nil, err
		}
		if !cont {
			return c.finish(st)
		}
		st, err = c.commitAndPush(st, st.CommitMessage, true)
		if err != nil {
			return nil, err
		}
	}
}

// recordGate logs every check outcome of one gate round to the event log.
func (c *Controller) recordGate(st *state.OrchestrationState, round int, res *gate.Result) {
	if data, err := res.JSON(); err == nil {
		_ = c.store.SaveGateResult(st.ID, round, []byte(data))
	}
	for _, chk := range res.Checks {
		_ = c.db.LogCheckRun(st.ID, round, chk.Check, chk.Passed, chk.AutoFixed, 0, chk.DurationMs, chk.Summary, "")
	}
}

// recordFix persists one applied fix to both the state file and the DB.
func (c *Controller) recordFix(st *state.OrchestrationState, scope string, action dispatch.FixAction, outcome *dispatch.Outcome) (*state.OrchestrationState, error) {
	target := action.Command
	if action.Kind == dispatch.DelegateToSpecialist {
		target = action.Specialist
	}
	updated, err := c.store.Update(st.ID, func(o *state.OrchestrationState) {
		o.AppliedFixes = append(o.AppliedFixes, state.AppliedFix{
			Category: action.Category,
			Kind:     string(action.Kind),
			Target:   target,
			Success:  outcome.Success,
			Scope:    scope,
			At:       o.UpdatedAt,
		})
	})
	if err != nil {
		return nil, fmt.Errorf("persist fix record: %w", err)
	}
	_ = c.db.LogFixAction(st.ID, scope, string(action.Category), string(action.Kind), target, outcome.Success, outcome.Detail)
	c.logf("fix %s via %s: success=%v", action.Category, target, outcome.Success)
	return updated, nil
}

// finish archives a terminal orchestration and builds its report.
func (c *Controller) finish(st *state.OrchestrationState) (*Report, error) {
	if err := c.store.Archive(st.ID); err != nil {
		return nil, fmt.Errorf("archive orchestration: %w", err)
	}
	return c.report(st), nil
}

func (c *Controller) report(st *state.OrchestrationState) *Report {
	report := &Report{
		ID:             st.ID,
		Phase:          st.Phase,
		Reason:         st.TerminalReason,
		CommitSHA:      st.CommitSHA,
		LocalAttempts:  st.LocalAttempts,
		RemoteAttempts: st.RemoteAttempts,
		AppliedFixes:   st.AppliedFixes,
		Transitions:    st.Transitions,
		NextAction:     nextAction(st),
	}
	if st.LastGate != nil && !st.LastGate.Passed {
		report.Issues = st.LastGate.Issues
	}
	return report
}

// nextAction tells the operator the one decisive thing to do next.
func nextAction(st *state.OrchestrationState) string {
	switch st.Phase {
	case state.PhaseSucceeded:
		return ""
	case state.PhaseBlocked:
		if st.LastFailure != nil && st.LastFailure.Category != classify.Unknown {
			return fmt.Sprintf("fix the %s failure manually, then run: greenlight submit --amend", st.LastFailure.Category)
		}
		return "review the remaining issues, fix manually, then run: greenlight submit --amend"
	case state.PhaseTimedOut:
		if st.LastFailure != nil && st.LastFailure.Category != classify.Unknown {
			return fmt.Sprintf("fix the %s failure manually, then run: greenlight submit --amend", st.LastFailure.Category)
		}
		return fmt.Sprintf("inspect the pending CI runs, then run: greenlight resume %s", st.ID)
	case state.PhaseCancelled:
		return fmt.Sprintf("run: greenlight resume %s", st.ID)
	default:
		return fmt.Sprintf("run: greenlight resume %s", st.ID)
	}
}

// gateOptions assembles gate options from the ecosystem battery plus
// config overrides.
func (c *Controller) gateOptions(applyFixes bool) gate.Opts {
	specs := ecosystem.Battery(c.kind)
	for i := range specs {
		override, ok := c.cfg.Greenlight.Checks[specs[i].Name]
		if !ok {
			continue
		}
		if override.Command != "" {
			specs[i].Command = override.Command
		}
		if override.Parser != "" {
			specs[i].Parser = override.Parser
		}
		if override.Timeout != "" {
			specs[i].Timeout = config.ParseTimeout(override.Timeout, specs[i].Timeout)
		}
		if override.FixCommand != "" {
			specs[i].FixCommand = override.FixCommand
		}
		if override.AutoFix != nil {
			specs[i].AutoFix = *override.AutoFix
		}
	}

	var extra []gate.Rule
	for _, rule := range c.cfg.Greenlight.Gate.Forbidden {
		re, err := regexp.Compile(rule.Pattern)
		if err != nil {
			continue // rejected by config validation; skip here
		}
		extra = append(extra, gate.Rule{
			Name:     rule.Name,
			Pattern:  re,
			Message:  rule.Message,
			ProdOnly: rule.ProdOnly,
		})
	}

	return gate.Opts{
		Kind:       c.kind,
		Specs:      specs,
		ApplyFixes: applyFixes,
		ExtraRules: extra,
		DocFiles:   c.cfg.Greenlight.Gate.DocFiles,
	}
}

// uniqueCategories returns issue categories in first-seen order.
func uniqueCategories(issues []gate.Issue) []classify.Category {
	seen := make(map[classify.Category]bool)
	var cats []classify.Category
	for _, issue := range issues {
		if !seen[issue.Category] {
			seen[issue.Category] = true
			cats = append(cats, issue.Category)
		}
	}
	return cats
}

// requestFor bundles the issues of one category into a specialist request.
func requestFor(cat classify.Category, issues []gate.Issue) dispatch.Request {
	var evidence []string
	var files []string
	seenFile := make(map[string]bool)
	for _, issue := range issues {
		if issue.Category != cat {
			continue
		}
		line := issue.Message
		if issue.File != "" {
			line = fmt.Sprintf("%s:%d: %s", issue.File, issue.Line, issue.Message)
			if !seenFile[issue.File] {
				seenFile[issue.File] = true
				files = append(files, issue.File)
			}
		}
		evidence = append(evidence, line)
	}
	return dispatch.Request{
		Classification: classify.Classification{Category: cat, Confidence: 1},
		Evidence:       strings.Join(evidence, "\n"),
		Files:          files,
	}
}

func shortSHA(sha string) string {
	if len(sha) > 8 {
		return sha[:8]
	}
	return sha
}
