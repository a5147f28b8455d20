package workflow

import (
	"context"
	"fmt"
	"strings"

	"github.com/playwright-community/playwright-go"

	"github.com/framelight/deckhand/pkg/actions"
	"github.com/framelight/deckhand/pkg/config"
	"github.com/framelight/deckhand/pkg/locator"
	"github.com/framelight/deckhand/pkg/logging"
	"github.com/framelight/deckhand/pkg/teams"
)

// portalExecutor performs steps against live portal pages: vault actions on
// the asset portal, tracker actions on the run's project page. Each step
// navigates from scratch so steps stay independent of one another's final
// page state.
type portalExecutor struct {
	acts     *actions.Actions
	registry *teams.Registry
	vault    config.VaultConfig
	page     playwright.Page
	scope    locator.Scope
	logger   *logging.Logger
}

func newPortalExecutor(acts *actions.Actions, registry *teams.Registry, vault config.VaultConfig, page playwright.Page) *portalExecutor {
	logger, _ := logging.NewLogger("workflow")
	return &portalExecutor{
		acts:     acts,
		registry: registry,
		vault:    vault,
		page:     page,
		scope:    locator.PageScope(page),
		logger:   logger,
	}
}

func (e *portalExecutor) ExecuteStep(ctx context.Context, run *Run, index int, step *Step) error {
	switch step.Action {
	case ActionUploadAsset:
		return e.uploadAsset(ctx, step)
	case ActionShareAsset:
		return e.shareAsset(ctx, step)
	case ActionComment:
		return e.comment(ctx, step)
	case ActionUpdateStatus:
		return e.updateStatus(ctx, run, step)
	case ActionLogHours:
		return e.logHours(ctx, run, step)
	default:
		return fmt.Errorf("unknown action type %q", step.Action)
	}
}

func (e *portalExecutor) uploadAsset(ctx context.Context, step *Step) error {
	if err := e.acts.OpenVault(ctx, e.page, e.vault.BaseURL); err != nil {
		return err
	}
	if step.Params.Folder != "" {
		if err := e.acts.NavigateToFolder(ctx, e.page, step.Params.Folder); err != nil {
			return err
		}
	}
	return e.acts.UploadFiles(ctx, e.scope, []string{step.Params.AssetZipPath})
}

func (e *portalExecutor) shareAsset(ctx context.Context, step *Step) error {
	members, unknown := e.registry.Expand(step.Params.Teams, explicitMembers(step.Params.Recipients))
	if len(unknown) > 0 {
		e.logger.Warnf("unknown teams in share step: %s", strings.Join(unknown, ", "))
	}
	if len(members) == 0 {
		return fmt.Errorf("no recipients resolved (unknown teams: %s)", strings.Join(unknown, ", "))
	}

	if err := e.acts.OpenVault(ctx, e.page, e.vault.BaseURL); err != nil {
		return err
	}

	for _, group := range groupSelections(step.Params.Selections) {
		if err := e.acts.NavigateToFolder(ctx, e.page, group.folder); err != nil {
			return err
		}
		matcher, err := actions.NewMatcher(group.patterns)
		if err != nil {
			return err
		}
		selected, err := e.acts.SelectMatching(ctx, e.scope, matcher)
		if err != nil {
			return err
		}
		if len(selected) == 0 {
			return fmt.Errorf("no files in folder %q matched the selection", group.folder)
		}
		if err := e.acts.OpenShareDialog(ctx, e.scope); err != nil {
			return err
		}
		for _, member := range members {
			if err := e.acts.AddRecipient(ctx, e.scope, member, step.Params.Permission); err != nil {
				return err
			}
		}
		if err := e.acts.ConfirmShare(ctx, e.scope); err != nil {
			return err
		}
	}
	return nil
}

func (e *portalExecutor) comment(ctx context.Context, step *Step) error {
	if err := e.acts.OpenVault(ctx, e.page, e.vault.BaseURL); err != nil {
		return err
	}
	if step.Params.Folder != "" {
		if err := e.acts.NavigateToFolder(ctx, e.page, step.Params.Folder); err != nil {
			return err
		}
	}
	if err := e.acts.SelectFile(ctx, e.scope, step.Params.FileName); err != nil {
		return err
	}
	return e.acts.SubmitComment(ctx, e.scope, step.Params.Text, e.mentionNames(step))
}

func (e *portalExecutor) updateStatus(ctx context.Context, run *Run, step *Step) error {
	if err := e.acts.OpenTrackerProject(ctx, e.page, run.ProjectURL, step.Params.Project); err != nil {
		return err
	}
	return e.acts.UpdateStatus(ctx, e.scope, step.Params.Status)
}

func (e *portalExecutor) logHours(ctx context.Context, run *Run, step *Step) error {
	if err := e.acts.OpenTrackerProject(ctx, e.page, run.ProjectURL, step.Params.Project); err != nil {
		return err
	}
	return e.acts.LogHours(ctx, e.scope, step.Params.Hours, step.Params.Note)
}

// mentionNames merges explicit mentions with team members' display names,
// deduplicated case-insensitively in first-appearance order.
func (e *portalExecutor) mentionNames(step *Step) []string {
	members, _ := e.registry.Expand(step.Params.Teams, nil)
	names := make([]string, 0, len(step.Params.Mentions)+len(members))
	seen := make(map[string]bool)
	add := func(name string) {
		key := strings.ToLower(strings.TrimSpace(name))
		if key == "" || seen[key] {
			return
		}
		seen[key] = true
		names = append(names, name)
	}
	for _, name := range step.Params.Mentions {
		add(name)
	}
	for _, m := range members {
		add(m.Name)
	}
	return names
}

// explicitMembers converts raw recipient strings into members: anything
// with an @ is treated as an email, the rest as display names.
func explicitMembers(recipients []string) []teams.Member {
	out := make([]teams.Member, 0, len(recipients))
	for _, r := range recipients {
		r = strings.TrimSpace(r)
		if r == "" {
			continue
		}
		if strings.Contains(r, "@") {
			out = append(out, teams.Member{Email: r})
		} else {
			out = append(out, teams.Member{Name: r})
		}
	}
	return out
}

type selectionGroup struct {
	folder   string
	patterns []string
}

// groupSelections batches selections by folder in first-appearance order so
// navigation and the share dialog happen once per folder.
func groupSelections(selections []Selection) []selectionGroup {
	var groups []selectionGroup
	index := make(map[string]int)
	for _, sel := range selections {
		i, ok := index[sel.Folder]
		if !ok {
			i = len(groups)
			index[sel.Folder] = i
			groups = append(groups, selectionGroup{folder: sel.Folder})
		}
		groups[i].patterns = append(groups[i].patterns, sel.FileName)
	}
	return groups
}
