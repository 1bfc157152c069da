// Copyright (c) 2025 Daniel Kuo.
// Source-available; no permission granted to use, copy, modify, or distribute. See LICENSE.

/*
Package handlers contains the HTTP request handlers of the form emulator.

# Handler Types

Each handler is a struct holding the database and, where time matters, a clock:

  - AuthHandler: register, login, refresh token rotation, logout
  - FormHandler: create, public view, submission status, submit, and the
    owner's list, view, edit, delete and voters
  - DraftHandler: save, fetch and discard drafts
  - DashboardHandler: per-user statistics, participation status and a
    paged activity history

Handlers are created via constructor functions:

	authHandler := handlers.NewAuthHandler(db, issuer)
	formHandler := handlers.NewFormHandler(db, issuer.Now)

A nil clock means time.Now. Stored times are always UTC.

# Responses

Successes use middleware.Success with the operation name as the message:

	{"message": "submit-form", "data": {...}}

Failures use middleware.ErrorResponse, and request validation failures
list every failing field:

	{"errors": [{"field": "email", "message": "must be a valid email"}]}

# Submission Rules

SubmitForm runs in one transaction and rejects, in order:

  - unknown form (404)
  - the owner's own form (403)
  - before startAt (409 "Form is not open yet")
  - at or after endAt (409 "Form closed")
  - a second submission from the same user (400)
  - answers that do not fit the questions (400)

Every question needs an answer. A single choice question takes exactly
one option, a multiple choice question at least one, and a text question
non-empty text.

# Ownership

Only the owner may view, edit or delete a form or list its voters; anyone
else gets 403. Questions are frozen once the form has a submission.

# Participation

Saving a draft marks the form in_progress for the caller; submitting marks
it completed and deletes the draft. A completed participation is never
moved back to in_progress.
*/
package handlers
