package program

// PrimCategory tags a recognized primitive operation. Detector rules match on
// the category and argument metadata, never on literal callee names, so the
// catalog can grow through configuration without touching any analysis pass.
type PrimCategory string

const (
	PrimNone         PrimCategory = ""
	PrimLockAcquire  PrimCategory = "lock_acquire"
	PrimLockRelease  PrimCategory = "lock_release"
	PrimBlocking     PrimCategory = "blocking"      // receive/accept/wait primitives
	PrimFsCheck      PrimCategory = "fs_check"      // path-based attribute query
	PrimFsOpen       PrimCategory = "fs_open"       // path-based open
	PrimFsMutate     PrimCategory = "fs_mutate"     // path-based mutation
	PrimFsDescriptor PrimCategory = "fs_descriptor" // descriptor-based query (the safe pattern)
	PrimCopy         PrimCategory = "copy"
	PrimFormat       PrimCategory = "format"
	PrimAlloc        PrimCategory = "alloc"
)

// Primitive describes one catalog entry. Argument positions are zero-based
// and -1 when the primitive has no such argument. A primitive can carry
// metadata beyond its category: sprintf is a format primitive that also
// writes unbounded into DestArg, and both rule sets see it through the
// metadata rather than the category alone.
type Primitive struct {
	Name     string
	Category PrimCategory

	LockArg int // position of the lock object (acquire/release)
	PathArg int // position of the path string (fs_*)
	DestArg int // position of the destination buffer (copy/format writers)
	LenArg  int // position of the bounding length, -1 = unbounded
	FmtArg  int // position of the interpreted format string
	SizeArg int // position of the allocation size (alloc)
}

// WritesDest reports whether the primitive writes into a caller buffer.
func (p Primitive) WritesDest() bool { return p.DestArg >= 0 }

// Bounded reports whether the write carries a caller-supplied length bound.
func (p Primitive) Bounded() bool { return p.LenArg >= 0 }

// InterpretsFormat reports whether the primitive interprets a format string.
func (p Primitive) InterpretsFormat() bool { return p.FmtArg >= 0 }

// Catalog maps callee names to primitives.
type Catalog struct {
	entries map[string]Primitive
}

// Lookup returns the primitive entry for a callee name.
func (c *Catalog) Lookup(name string) (Primitive, bool) {
	p, ok := c.entries[name]
	return p, ok
}

// Category returns the category for a callee name, PrimNone when unknown.
func (c *Catalog) Category(name string) PrimCategory {
	return c.entries[name].Category
}

// Add registers an entry, replacing any existing one with the same name.
func (c *Catalog) Add(p Primitive) {
	c.entries[p.Name] = p
}

func prim(name string, cat PrimCategory) Primitive {
	return Primitive{Name: name, Category: cat, LockArg: -1, PathArg: -1, DestArg: -1, LenArg: -1, FmtArg: -1, SizeArg: -1}
}

// DefaultCatalog covers the pthread, libc string/format, and POSIX filesystem
// primitives the fixture corpus exercises.
func DefaultCatalog() *Catalog {
	c := &Catalog{entries: make(map[string]Primitive)}

	for _, name := range []string{
		"pthread_mutex_lock", "pthread_spin_lock", "spin_lock", "mutex_lock",
		"pthread_rwlock_rdlock", "pthread_rwlock_wrlock", "sem_wait",
	} {
		p := prim(name, PrimLockAcquire)
		p.LockArg = 0
		c.Add(p)
	}
	for _, name := range []string{
		"pthread_mutex_unlock", "pthread_spin_unlock", "spin_unlock", "mutex_unlock",
		"pthread_rwlock_unlock", "sem_post",
	} {
		p := prim(name, PrimLockRelease)
		p.LockArg = 0
		c.Add(p)
	}

	// Blocking while a lock is held is a liveness hazard on its own.
	for _, name := range []string{
		"recv", "recvfrom", "recvmsg", "accept", "select", "poll", "epoll_wait",
		"pthread_cond_wait", "sleep", "usleep", "nanosleep", "read", "fgets", "getchar",
	} {
		c.Add(prim(name, PrimBlocking))
	}

	// Filesystem, path-based vs descriptor-based.
	for _, name := range []string{"access", "stat", "lstat", "faccessat", "readlink"} {
		p := prim(name, PrimFsCheck)
		p.PathArg = 0
		if name == "faccessat" {
			p.PathArg = 1
		}
		c.Add(p)
	}
	for _, name := range []string{"open", "fopen", "openat", "creat"} {
		p := prim(name, PrimFsOpen)
		p.PathArg = 0
		if name == "openat" {
			p.PathArg = 1
		}
		c.Add(p)
	}
	for _, name := range []string{"unlink", "rename", "chmod", "chown", "truncate", "remove", "mkdir", "rmdir", "symlink", "link"} {
		p := prim(name, PrimFsMutate)
		p.PathArg = 0
		c.Add(p)
	}
	for _, name := range []string{"fstat", "fchmod", "fchown", "ftruncate", "fcntl"} {
		c.Add(prim(name, PrimFsDescriptor))
	}

	// Copy primitives. LenArg -1 marks the unbounded classics.
	copies := []struct {
		name         string
		dest, length int
	}{
		{"strcpy", 0, -1},
		{"strcat", 0, -1},
		{"gets", 0, -1},
		{"strncpy", 0, 2},
		{"strncat", 0, 2},
		{"memcpy", 0, 2},
		{"memmove", 0, 2},
	}
	for _, e := range copies {
		p := prim(e.name, PrimCopy)
		p.DestArg = e.dest
		p.LenArg = e.length
		c.Add(p)
	}

	// Format primitives. sprintf also writes unbounded into arg 0, snprintf
	// is the bounded form; both carry dest metadata so the copy rule sees
	// them too.
	formats := []struct {
		name      string
		fmt       int
		dest, len int
	}{
		{"printf", 0, -1, -1},
		{"fprintf", 1, -1, -1},
		{"dprintf", 1, -1, -1},
		{"sprintf", 1, 0, -1},
		{"snprintf", 2, 0, 1},
		{"syslog", 1, -1, -1},
		{"vprintf", 0, -1, -1},
		{"vfprintf", 1, -1, -1},
	}
	for _, e := range formats {
		p := prim(e.name, PrimFormat)
		p.FmtArg = e.fmt
		p.DestArg = e.dest
		p.LenArg = e.len
		c.Add(p)
	}

	// Allocation. calloc guards its own product, so only SizeArg carriers
	// participate in the overflow rule.
	for _, name := range []string{"malloc", "alloca"} {
		p := prim(name, PrimAlloc)
		p.SizeArg = 0
		c.Add(p)
	}
	re := prim("realloc", PrimAlloc)
	re.SizeArg = 1
	c.Add(re)
	c.Add(prim("calloc", PrimAlloc))

	return c
}
