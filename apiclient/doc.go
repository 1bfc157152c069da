// Copyright (c) 2025 Daniel Kuo.
// Source-available; no permission granted to use, copy, modify, or distribute. See LICENSE.

/*
Package apiclient is the HTTP client for the form service REST API.

# Envelope

Successful responses carry {"message": ..., "data": ...}; the data is decoded
into the caller's value. Error responses become *APIError with the status code
and the server's message, which callers show to users unchanged:

	_, err := c.Submit(ctx, formID, req)
	if msg := apiclient.Message(err); msg != "" {
		fmt.Println(msg) // e.g. "Form closed"
	}

# Errors

Every error matches one sentinel with errors.Is:

  - ErrNetwork: the request never got a response
  - ErrAuth: 401, or the session could not be refreshed
  - ErrAccess: 403
  - ErrNotFound: 404
  - ErrAPI: any other non-2xx status

# Retries and Refresh

GET requests are retried on connection errors and 5xx responses using
go-retryablehttp. Writes are sent once. A 401 on an authenticated call
refreshes the access token once and repeats the call; if the refresh fails the
session is cleared.
*/
package apiclient
