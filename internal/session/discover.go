package session

import (
	"context"
	"fmt"

	"github.com/dbgbridge/dbgbridge/internal/dap"
	"github.com/dbgbridge/dbgbridge/internal/pause"
	"github.com/dbgbridge/dbgbridge/internal/rdp"
	"github.com/dbgbridge/dbgbridge/internal/skipfiles"
)

// Start moves the session from Initialized through Discovering into
// Running. In modern mode (traits.SupportsEnableWindowGlobalThreadActors)
// it resolves the single descriptor named by the launch configuration and
// attaches it via its Watcher. In legacy mode it instead attaches every
// open tab passing the TabFilter, treating each tab actor as its own
// descriptor (through the same attachDescriptor/Watcher path), and
// subscribes to the root actor's tabOpened/tabListChanged events to
// attach tabs that appear later (spec.md §4.I step 3).
func (s *Session) Start(ctx context.Context) error {
	s.mu.Lock()
	s.state = StateDiscovering
	s.mu.Unlock()

	if !s.traits.SupportsEnableWindowGlobalThreadActors {
		return s.startLegacy(ctx)
	}
	return s.startModern(ctx)
}

func (s *Session) startModern(ctx context.Context) error {
	rootList, err := s.root.FetchRoot(ctx)
	if err != nil {
		return fmt.Errorf("session: fetching root list: %w", err)
	}

	descriptorActor, err := s.selectDescriptor(rootList)
	if err != nil {
		return err
	}

	if err := s.attachDescriptor(ctx, descriptorActor); err != nil {
		return err
	}

	s.mu.Lock()
	s.state = StateRunning
	s.mu.Unlock()
	return nil
}

// startLegacy attaches every currently open tab passing the configured
// TabFilter, then keeps attaching newly opened ones as the engine reports
// them (spec.md §4.I step 3). Each legacy tab actor doubles as its own
// descriptor, so attachDescriptor's Watcher/BreakpointList/
// ThreadConfiguration wiring applies unchanged per tab. A multi-tab
// legacy session leaves s.threadByBP/s.threadConf pointed at whichever
// tab attached most recently — breakpoints set while more than one
// legacy tab is attached install only against the latest one, a
// documented simplification (DESIGN.md) rather than a per-target
// breakpoint registry.
func (s *Session) startLegacy(ctx context.Context) error {
	rootList, err := s.root.FetchRoot(ctx)
	if err != nil {
		return fmt.Errorf("session: fetching root list: %w", err)
	}

	attached := make(map[string]bool)
	attach := func(tab rdp.TabSummary) {
		if attached[tab.Actor] || !s.opts.TabFilter.matches(tab.URL) {
			return
		}
		attached[tab.Actor] = true
		if err := s.attachDescriptor(ctx, tab.Actor); err != nil {
			s.log.Warn("legacy tab attach failed", "actor", tab.Actor, "error", err)
		}
	}

	for _, tab := range rootList.Tabs {
		attach(tab)
	}

	s.root.OnTabOpened(func(tab rdp.TabSummary) {
		s.async(func() { attach(tab) })
	})
	s.root.OnTabListChanged(func() {
		s.async(func() {
			rootList, err := s.root.FetchRoot(ctx)
			if err != nil {
				s.log.Warn("legacy tab list refresh failed", "error", err)
				return
			}
			for _, tab := range rootList.Tabs {
				attach(tab)
			}
		})
	})

	s.mu.Lock()
	s.state = StateRunning
	s.mu.Unlock()
	return nil
}

// attachDescriptor wires one descriptor (the addon/tab named by the
// launch config in modern mode, or a single legacy tab) through to target
// and resource discovery: getWatcher, getBreakpointListActor,
// getThreadConfigurationActor, then watchTargets before watchResources so
// no early thread-state event is missed for the first target (spec.md §9
// Open Question).
func (s *Session) attachDescriptor(ctx context.Context, descriptorActor string) error {
	descriptor, err := rdp.NewDescriptor(s.conn, descriptorActor)
	if err != nil {
		return fmt.Errorf("session: descriptor actor: %w", err)
	}
	descriptor.OnDestroyed(func() {
		s.log.Info("descriptor destroyed, terminating session")
		s.Terminate(context.Background())
	})

	watcher, err := descriptor.GetWatcher(ctx, s.conn)
	if err != nil {
		return fmt.Errorf("session: watcher actor: %w", err)
	}

	bpList, err := watcher.GetBreakpointListActor(ctx, s.conn)
	if err != nil {
		return fmt.Errorf("session: breakpoint list actor: %w", err)
	}
	threadConf, err := watcher.GetThreadConfigurationActor(ctx, s.conn)
	if err != nil {
		return fmt.Errorf("session: thread configuration actor: %w", err)
	}
	s.mu.Lock()
	s.threadByBP = bpList
	s.threadConf = threadConf
	s.mu.Unlock()

	watcher.OnTargetAvailable(func(info rdp.TargetInfo) {
		s.async(func() { s.handleTargetAvailable(ctx, watcher, info) })
	})
	watcher.OnTargetDestroyed(s.handleTargetDestroyed)

	if err := watcher.WatchTargets(ctx, rdp.TargetFrame); err != nil {
		return fmt.Errorf("session: watchTargets: %w", err)
	}
	if err := watcher.WatchResources(ctx, []rdp.ResourceKind{
		rdp.ResourceThreadState, rdp.ResourceConsoleMessage, rdp.ResourceErrorMessage, rdp.ResourceSource,
	}); err != nil {
		return fmt.Errorf("session: watchResources: %w", err)
	}
	return nil
}

// selectDescriptor resolves the one descriptor a modern-mode session
// attaches to: the addon background-script descriptor when AddonID is
// set, otherwise the first tab passing the configured TabFilter
// (spec.md §6 tabFilter, §4.I step 4).
func (s *Session) selectDescriptor(rootList rdp.RootList) (string, error) {
	if s.opts.AddonID != "" {
		return s.opts.AddonID, nil
	}
	for _, tab := range rootList.Tabs {
		if s.opts.TabFilter.matches(tab.URL) {
			return tab.Actor, nil
		}
	}
	return "", fmt.Errorf("session: no tab matched the configured filter among %d open tabs", len(rootList.Tabs))
}

// handleTargetAvailable is invoked via Session.async (see attachDescriptor)
// rather than inline from the connection's dispatcher goroutine: it issues
// NewTarget/NewThread/NewConsole (each a GetOrCreate round trip through
// Connection.cmdCh) and threadConf.UpdateConfiguration, a blocking RPC —
// calling any of those from the dispatcher goroutine itself would deadlock
// the bridge on the very first discovered target, since the response can
// only be delivered by the goroutine that's stuck waiting for it.
func (s *Session) handleTargetAvailable(ctx context.Context, watcher *rdp.Watcher, info rdp.TargetInfo) {
	target, err := rdp.NewTarget(s.conn, info.Target)
	if err != nil {
		s.log.Warn("target actor setup failed", "actor", info.Target, "error", err)
		return
	}
	thread, err := rdp.NewThread(s.conn, info.Thread)
	if err != nil {
		s.log.Warn("thread actor setup failed", "actor", info.Thread, "error", err)
		return
	}
	console, err := rdp.NewConsole(s.conn, info.Console)
	if err != nil {
		s.log.Warn("console actor setup failed", "actor", info.Console, "error", err)
		return
	}

	s.mu.Lock()
	s.nextID++
	id := s.nextID
	s.mu.Unlock()

	adapter := pause.New(id, info.URL, info.Type, target, thread, console, pause.Options{
		Sink:    s.opts.Sink,
		Log:     s.log,
		Sources: s.srcMgr,
		Async:   s.async,
		OnBreakpointStop: func(path string, line, col int) bool {
			return s.bpMgr.OnPaused(path, line, col)
		},
		OnStopped: func(threadID int) {
			s.mu.Lock()
			s.activeID = threadID
			s.mu.Unlock()
		},
		OnContinued: s.ResetRefs,
	})

	target.OnNewSource(func(ns rdp.NewSourceInfo) {
		s.async(func() { s.handleNewSource(ctx, target, ns) })
	})
	target.OnConsoleMessage(func(cm rdp.ConsoleMessage) {
		if s.opts.Sink != nil {
			s.opts.Sink.Send("output", dap.OutputEvent{Output: string(cm.Arguments), Category: dap.OutputConsole})
		}
	})
	target.OnErrorMessage(func(em rdp.ErrorMessage) {
		if s.opts.Sink != nil {
			s.opts.Sink.Send("output", dap.OutputEvent{
				Output: em.ErrorMessage, Category: dap.OutputStderr,
				Source: &dap.Source{Name: em.SourceName}, Line: em.LineNumber, Column: em.ColumnNumber,
			})
		}
	})

	s.mu.Lock()
	s.threads[id] = &threadEntry{target: target, thread: thread, console: console, adapter: adapter}
	s.actorToID[target.ActorName()] = id
	s.mu.Unlock()

	if s.opts.Sink != nil {
		s.opts.Sink.Send("thread", dap.ThreadEvent{Reason: dap.ThreadStarted, ThreadID: id})
	}
	s.log.Info("target discovered", "thread", id, "type", info.Type, "url", info.URL)

	if threadConf := s.threadConfForNewThread(); threadConf != nil {
		if err := threadConf.UpdateConfiguration(ctx, map[string]any{"skipBreakpoints": false}); err != nil {
			s.log.Debug("initial thread configuration push failed", "thread", id, "error", err)
		}
	}
}

func (s *Session) threadConfForNewThread() *rdp.ThreadConfiguration {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.threadConf
}

// handleTargetDestroyed removes the thread entry for actor, if known, and
// emits a "thread" event with reason "exited". It touches no actor RPCs, so it stays
// wired directly off the dispatcher goroutine — spec.md §9 Open Question:
// an unknown actor name here is logged and ignored, not treated as an
// error.
func (s *Session) handleTargetDestroyed(actor string) {
	s.mu.Lock()
	id, ok := s.actorToID[actor]
	if ok {
		delete(s.threads, id)
		delete(s.actorToID, actor)
	}
	s.mu.Unlock()

	if !ok {
		s.log.Debug("target-destroyed for unknown actor", "actor", actor)
		return
	}
	if s.opts.Sink != nil {
		s.opts.Sink.Send("thread", dap.ThreadEvent{Reason: dap.ThreadExited, ThreadID: id})
	}
	s.log.Info("target destroyed", "thread", id, "actor", actor)
}

// handleNewSource is invoked via Session.async (see handleTargetAvailable),
// never inline from the dispatcher goroutine: on a skipFiles rule mismatch
// it calls Source.SetBlackbox, a blocking RPC that would otherwise be
// issued from the very goroutine that must service its response.
func (s *Session) handleNewSource(ctx context.Context, target *rdp.Target, ns rdp.NewSourceInfo) {
	sa := s.srcMgr.RegisterSource(ns.Actor, ns.GeneratedURL)
	sa.IsBlackBoxed = ns.IsBlackBoxed
	sa.IntroductionType = ns.IntroductionType

	decided, ok := s.skipMgr.Decide(skipfiles.MatchKey{
		Path: sa.LocalPath, GeneratedURL: sa.GeneratedURL, URL: sa.OriginalURL,
	})
	if s.skipMgr.Reconcile(ns.Actor, ns.IsBlackBoxed, decided, ok) {
		src, err := rdp.NewSource(s.conn, ns.Actor)
		if err != nil {
			s.log.Debug("blackbox flip source actor setup failed", "source", ns.Actor, "error", err)
		} else if err := src.SetBlackbox(ctx, decided); err != nil {
			s.log.Debug("blackbox flip failed", "source", ns.Actor, "error", err)
		} else {
			sa.IsBlackBoxed = decided
		}
	}

	if s.opts.Sink != nil {
		s.opts.Sink.Send("newSource", dap.NewSourceEvent{URL: sa.OriginalURL, Path: sa.LocalPath})
	}
}

// Terminate moves the session into StateTerminating and tears the
// connection down. That is all it does: it sends no signal to the engine
// process, installs no terminator addon and removes no temporary profile,
// and cmd/dbgbridge does none of these either.
func (s *Session) Terminate(ctx context.Context) {
	s.mu.Lock()
	if s.state == StateTerminating {
		s.mu.Unlock()
		return
	}
	s.state = StateTerminating
	s.mu.Unlock()

	s.conn.Disconnect()
}
