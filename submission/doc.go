// Copyright (c) 2025 Daniel Kuo.
// Source-available; no permission granted to use, copy, modify, or distribute. See LICENSE.

/*
Package submission drives a single form from loading to a completed
submission.

# Lifecycle

	flow := submission.New(client, formID, email)
	if err := flow.Load(ctx); err != nil {
		// network failure, still Loading
	}
	switch flow.State() {
	case submission.Active:
		flow.UpdateAnswer(questionID, answers.Text("..."))
		err := flow.Submit(ctx)
	case submission.NotAvailable:
		// flow.Availability() is Upcoming or Expired
	}
	defer flow.Close(ctx)

Load fetches the form, the caller's completion status and any saved draft in
parallel. A completed form is AlreadyCompleted whatever its window says. The
window is half open: a form is available from startAt up to, but not
including, endAt.

# Autosave

Every UpdateAnswer arms the autosave scheduler. Close flushes the pending
draft synchronously; Submit cancels it.

# Errors

Submit returns *answers.ValidationError when any question is unanswered and
leaves the flow Active. A rejected submission also stays Active, with
LastError holding the server's message.
*/
package submission
