/*
Package testutil holds helpers shared by ragnar's tests.

  - context helpers that register their own cleanup
  - JSON helpers for building tool arguments
  - testutil/mocks: a scripted llm.Provider and a static search.Client
  - testutil/fixtures: canned completions and search results

Usage:

	ctx := testutil.TestContext(t)
	provider := mocks.NewMockProvider().
		On("binary score", mocks.Reply{Content: `{"score":"yes"}`}).
		WithResponse("final answer")
*/
package testutil
