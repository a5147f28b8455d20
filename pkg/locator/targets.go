package locator

import (
	"fmt"
	"strings"
)

// quote escapes a value for embedding in CSS attribute and :has-text
// selectors.
func quote(value string) string {
	escaped := strings.ReplaceAll(value, `\`, `\\`)
	escaped = strings.ReplaceAll(escaped, `"`, `\"`)
	return `"` + escaped + `"`
}

// Vault targets. Candidate order is stability order: test IDs first, then
// semantic attributes, then text matching as the last resort.

// VaultFolderRow matches a folder entry in the asset tree by display name.
func VaultFolderRow(name string) Target {
	q := quote(name)
	return Target{
		Name: fmt.Sprintf("folder %q", name),
		Candidates: []string{
			fmt.Sprintf(`[data-testid="folder-row"][data-name=%s]`, q),
			fmt.Sprintf(`[role="treeitem"][aria-label=%s]`, q),
			fmt.Sprintf(`.folder-tree .folder-item:has-text(%s)`, q),
			fmt.Sprintf(`a.folder-link:has-text(%s)`, q),
		},
	}
}

// VaultFileRow matches a file entry in the current folder listing.
func VaultFileRow(name string) Target {
	q := quote(name)
	return Target{
		Name: fmt.Sprintf("file %q", name),
		Candidates: []string{
			fmt.Sprintf(`[data-testid="asset-row"][data-name=%s]`, q),
			fmt.Sprintf(`tr.asset-row:has-text(%s)`, q),
			fmt.Sprintf(`[role="row"]:has-text(%s)`, q),
			fmt.Sprintf(`.file-card:has-text(%s)`, q),
		},
	}
}

// VaultFileRowCheckbox matches the selection control inside a file row.
func VaultFileRowCheckbox(name string) Target {
	q := quote(name)
	return Target{
		Name: fmt.Sprintf("selection checkbox for %q", name),
		Candidates: []string{
			fmt.Sprintf(`[data-testid="asset-row"][data-name=%s] input[type="checkbox"]`, q),
			fmt.Sprintf(`tr.asset-row:has-text(%s) input[type="checkbox"]`, q),
			fmt.Sprintf(`.file-card:has-text(%s) [role="checkbox"]`, q),
		},
	}
}

// VaultFileList matches the file listing container of the open folder.
var VaultFileList = Target{
	Name: "file list",
	Candidates: []string{
		`[data-testid="asset-list"]`,
		`table.asset-table tbody`,
		`[role="grid"]`,
		`.file-browser .file-list`,
	},
}

// VaultBreadcrumb matches the current-folder breadcrumb, used to verify
// navigation landed.
func VaultBreadcrumb(folder string) Target {
	q := quote(folder)
	return Target{
		Name: fmt.Sprintf("breadcrumb %q", folder),
		Candidates: []string{
			fmt.Sprintf(`[data-testid="breadcrumb-current"]:has-text(%s)`, q),
			fmt.Sprintf(`nav[aria-label="Breadcrumb"] li:last-child:has-text(%s)`, q),
			fmt.Sprintf(`.breadcrumbs .current:has-text(%s)`, q),
		},
	}
}

// VaultShareButton opens the share dialog for the current selection.
var VaultShareButton = Target{
	Name: "share button",
	Candidates: []string{
		`[data-testid="share-button"]`,
		`button[aria-label="Share"]`,
		`button:has-text("Share")`,
		`.toolbar .share-action`,
	},
}

// VaultShareDialog matches the opened share dialog.
var VaultShareDialog = Target{
	Name: "share dialog",
	Candidates: []string{
		`[data-testid="share-dialog"]`,
		`[role="dialog"]:has-text("Share")`,
		`.modal.share-modal`,
	},
}

// VaultRecipientInput matches the recipient entry field inside the share
// dialog.
var VaultRecipientInput = Target{
	Name: "recipient input",
	Candidates: []string{
		`[data-testid="share-recipient-input"]`,
		`[role="dialog"] input[placeholder*="email" i]`,
		`[role="dialog"] input[placeholder*="name" i]`,
		`.share-modal input[type="text"]`,
	},
}

// VaultRecipientOption matches an autocomplete suggestion for a recipient.
func VaultRecipientOption(nameOrEmail string) Target {
	q := quote(nameOrEmail)
	return Target{
		Name: fmt.Sprintf("recipient option %q", nameOrEmail),
		Candidates: []string{
			fmt.Sprintf(`[data-testid="recipient-option"]:has-text(%s)`, q),
			fmt.Sprintf(`[role="option"]:has-text(%s)`, q),
			fmt.Sprintf(`.autocomplete-results li:has-text(%s)`, q),
		},
	}
}

// VaultRecipientChip matches a confirmed recipient chip in the share dialog.
func VaultRecipientChip(nameOrEmail string) Target {
	q := quote(nameOrEmail)
	return Target{
		Name: fmt.Sprintf("recipient chip %q", nameOrEmail),
		Candidates: []string{
			fmt.Sprintf(`[data-testid="recipient-chip"]:has-text(%s)`, q),
			fmt.Sprintf(`.share-modal .chip:has-text(%s)`, q),
			fmt.Sprintf(`[role="dialog"] .recipient:has-text(%s)`, q),
		},
	}
}

// VaultPermissionMenu matches the permission level menu of the most recently
// added recipient.
var VaultPermissionMenu = Target{
	Name: "permission menu",
	Candidates: []string{
		`[data-testid="permission-select"]`,
		`[role="dialog"] select.permission`,
		`.share-modal .permission-dropdown`,
	},
}

// VaultPermissionOption matches one level inside the permission menu.
func VaultPermissionOption(level string) Target {
	q := quote(level)
	return Target{
		Name: fmt.Sprintf("permission %q", level),
		Candidates: []string{
			fmt.Sprintf(`[data-testid="permission-option"][data-value=%s]`, q),
			fmt.Sprintf(`[role="option"]:has-text(%s)`, q),
			fmt.Sprintf(`.permission-dropdown li:has-text(%s)`, q),
		},
	}
}

// VaultShareConfirm submits the share dialog.
var VaultShareConfirm = Target{
	Name: "share confirm",
	Candidates: []string{
		`[data-testid="share-submit"]`,
		`[role="dialog"] button[type="submit"]`,
		`[role="dialog"] button:has-text("Send")`,
		`[role="dialog"] button:has-text("Share")`,
	},
}

// VaultCommentBox matches the comment composer on an asset.
var VaultCommentBox = Target{
	Name: "comment box",
	Candidates: []string{
		`[data-testid="comment-input"]`,
		`[contenteditable="true"][aria-label*="comment" i]`,
		`textarea[placeholder*="comment" i]`,
		`.comment-composer [contenteditable="true"]`,
	},
}

// VaultMentionOption matches a mention suggestion while typing @name.
func VaultMentionOption(name string) Target {
	q := quote(name)
	return Target{
		Name: fmt.Sprintf("mention option %q", name),
		Candidates: []string{
			fmt.Sprintf(`[data-testid="mention-option"]:has-text(%s)`, q),
			fmt.Sprintf(`[role="listbox"] [role="option"]:has-text(%s)`, q),
			fmt.Sprintf(`.mention-dropdown li:has-text(%s)`, q),
		},
	}
}

// VaultCommentSubmit posts the composed comment.
var VaultCommentSubmit = Target{
	Name: "comment submit",
	Candidates: []string{
		`[data-testid="comment-submit"]`,
		`button[aria-label="Post comment"]`,
		`.comment-composer button[type="submit"]`,
		`button:has-text("Post")`,
	},
}

// VaultCommentEntry matches a posted comment containing the given text,
// used to verify submission.
func VaultCommentEntry(text string) Target {
	q := quote(text)
	return Target{
		Name: "posted comment",
		Candidates: []string{
			fmt.Sprintf(`[data-testid="comment-entry"]:has-text(%s)`, q),
			fmt.Sprintf(`.comment-thread .comment:has-text(%s)`, q),
			fmt.Sprintf(`[role="article"]:has-text(%s)`, q),
		},
	}
}

// VaultDownloadButton triggers download of the current selection.
var VaultDownloadButton = Target{
	Name: "download button",
	Candidates: []string{
		`[data-testid="download-button"]`,
		`button[aria-label="Download"]`,
		`button:has-text("Download")`,
		`.toolbar .download-action`,
	},
}

// VaultUploadInput matches the hidden file input behind the upload control.
var VaultUploadInput = Target{
	Name: "upload input",
	Candidates: []string{
		`[data-testid="upload-input"]`,
		`input[type="file"]`,
	},
}

// VaultUploadButton matches the visible upload affordance.
var VaultUploadButton = Target{
	Name: "upload button",
	Candidates: []string{
		`[data-testid="upload-button"]`,
		`button[aria-label="Upload"]`,
		`button:has-text("Upload")`,
	},
}

// VaultShareToast matches the transient confirmation after sharing.
var VaultShareToast = Target{
	Name: "share confirmation",
	Candidates: []string{
		`[data-testid="toast-success"]`,
		`[role="status"]:has-text("shared")`,
		`.toast:has-text("Shared")`,
	},
}

// Tracker targets.

// TrackerProjectHeader verifies the project page loaded.
func TrackerProjectHeader(project string) Target {
	q := quote(project)
	return Target{
		Name: fmt.Sprintf("project header %q", project),
		Candidates: []string{
			fmt.Sprintf(`[data-testid="project-title"]:has-text(%s)`, q),
			fmt.Sprintf(`h1:has-text(%s)`, q),
			fmt.Sprintf(`.project-header:has-text(%s)`, q),
		},
	}
}

// TrackerStatusControl opens the status selector on a project or task.
var TrackerStatusControl = Target{
	Name: "status control",
	Candidates: []string{
		`[data-testid="status-select"]`,
		`[aria-label="Status"]`,
		`button.status-pill`,
		`.status-dropdown-trigger`,
	},
}

// TrackerStatusOption matches one status value in the opened selector.
func TrackerStatusOption(status string) Target {
	q := quote(status)
	return Target{
		Name: fmt.Sprintf("status option %q", status),
		Candidates: []string{
			fmt.Sprintf(`[data-testid="status-option"][data-value=%s]`, q),
			fmt.Sprintf(`[role="option"]:has-text(%s)`, q),
			fmt.Sprintf(`.status-menu li:has-text(%s)`, q),
		},
	}
}

// TrackerStatusBadge matches the rendered status, used to verify the change.
func TrackerStatusBadge(status string) Target {
	q := quote(status)
	return Target{
		Name: fmt.Sprintf("status badge %q", status),
		Candidates: []string{
			fmt.Sprintf(`[data-testid="status-select"]:has-text(%s)`, q),
			fmt.Sprintf(`.status-pill:has-text(%s)`, q),
			fmt.Sprintf(`[aria-label="Status"]:has-text(%s)`, q),
		},
	}
}

// TrackerLogHoursButton opens the time entry form.
var TrackerLogHoursButton = Target{
	Name: "log hours button",
	Candidates: []string{
		`[data-testid="log-time-button"]`,
		`button[aria-label="Log time"]`,
		`button:has-text("Log time")`,
		`button:has-text("Log hours")`,
	},
}

// TrackerHoursInput matches the hours field in the time entry form.
var TrackerHoursInput = Target{
	Name: "hours input",
	Candidates: []string{
		`[data-testid="hours-input"]`,
		`input[name="hours"]`,
		`input[aria-label="Hours"]`,
		`.time-entry-form input[type="number"]`,
	},
}

// TrackerHoursNote matches the optional note field in the time entry form.
var TrackerHoursNote = Target{
	Name: "hours note",
	Candidates: []string{
		`[data-testid="hours-note"]`,
		`textarea[name="note"]`,
		`.time-entry-form textarea`,
	},
}

// TrackerHoursSubmit saves the time entry.
var TrackerHoursSubmit = Target{
	Name: "hours submit",
	Candidates: []string{
		`[data-testid="hours-submit"]`,
		`.time-entry-form button[type="submit"]`,
		`button:has-text("Save entry")`,
		`button:has-text("Save")`,
	},
}

// TrackerHoursToast matches the confirmation after logging time.
var TrackerHoursToast = Target{
	Name: "hours confirmation",
	Candidates: []string{
		`[data-testid="toast-success"]`,
		`[role="status"]:has-text("logged")`,
		`.toast:has-text("Time logged")`,
	},
}
