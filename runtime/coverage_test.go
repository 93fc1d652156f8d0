package runtime

import (
	"sort"
	"testing"
)

// importedSymbols lists every non-driver symbol the game and its libraries
// import. SDL and OpenSL entry points belong to the driver collaborators.
var importedSymbols = []string{
	"Android_JNI_GetEnv", "GetScreenHeightInch", "GetScreenHeightPixel",
	"_ZdaPv", "_ZdlPv", "_Znaj", "_Znwj", "__aeabi_atexit", "__aeabi_memclr",
	"__aeabi_memclr4", "__aeabi_memclr8", "__aeabi_memcpy", "__aeabi_memcpy4",
	"__aeabi_memcpy8", "__aeabi_memmove", "__aeabi_memmove4",
	"__aeabi_memmove8", "__aeabi_memset", "__aeabi_memset4", "__aeabi_memset8",
	"__android_log_print", "__android_log_vprint", "__android_log_write",
	"__cxa_atexit", "__cxa_call_unexpected", "__cxa_finalize",
	"__cxa_guard_acquire", "__cxa_guard_release", "__errno",
	"__gnu_Unwind_Find_exidx", "__gnu_unwind_frame",
	"__google_potentially_blocking_region_begin",
	"__google_potentially_blocking_region_end", "__sF", "__stack_chk_fail",
	"__stack_chk_guard", "_ctype_", "_tolower_tab_", "_toupper_tab_", "abort",
	"access", "acos", "acosf", "asin", "asinf", "atan", "atan2", "atan2f",
	"atanf", "atoi", "atoll", "basename", "bind", "bsearch", "btowc", "calloc",
	"ceil", "ceilf", "chdir", "clearerr", "clock_gettime", "close", "cos",
	"cosf", "cosh", "crc32", "deflate", "deflateEnd", "deflateInit2_",
	"deflateReset", "dl_unwind_find_exidx", "dlopen", "dlsym", "exit", "exp",
	"expf", "fclose", "fcntl", "fdopen", "ferror", "fflush", "fgets", "floor",
	"floorf", "fmod", "fmodf", "fopen", "fprintf", "fputc", "fputs", "fread",
	"free", "frexp", "frexpf", "fseek", "fstat", "ftell", "ftello", "fwrite",
	"getc", "getcwd", "getenv", "getpid", "gettimeofday", "getwc",
	"glCompileShader", "glShaderSource", "gzopen", "inflate", "inflateEnd",
	"inflateInit_", "inflateReset", "isalnum", "isalpha", "iscntrl", "islower",
	"isprint", "ispunct", "isspace", "isupper", "iswalpha", "iswcntrl",
	"iswctype", "iswdigit", "iswlower", "iswprint", "iswpunct", "iswspace",
	"iswupper", "iswxdigit", "isxdigit", "ldexp", "ldexpf", "listen",
	"localtime_r", "log", "log10", "longjmp", "lrand48", "lrint", "lrintf",
	"lseek", "malloc", "mbrtowc", "memalign", "memchr", "memcmp", "memcpy",
	"memmove", "memset", "mkdir", "mmap", "modf", "modff", "munmap", "open",
	"poll", "pow", "powf", "printf", "pthread_attr_destroy",
	"pthread_attr_init", "pthread_attr_setdetachstate",
	"pthread_attr_setstacksize", "pthread_cond_broadcast",
	"pthread_cond_destroy", "pthread_cond_init",
	"pthread_cond_timedwait_relative_np", "pthread_cond_wait", "pthread_create",
	"pthread_getschedparam", "pthread_getspecific", "pthread_key_create",
	"pthread_key_delete", "pthread_mutex_destroy", "pthread_mutex_init",
	"pthread_mutex_lock", "pthread_mutex_trylock", "pthread_mutex_unlock",
	"pthread_mutexattr_destroy", "pthread_mutexattr_init",
	"pthread_mutexattr_settype", "pthread_once", "pthread_self",
	"pthread_setname_np", "pthread_setschedparam", "pthread_setspecific",
	"putc", "puts", "putwc", "qsort", "read", "readlink", "realloc", "recv",
	"rint", "sched_get_priority_max", "sched_get_priority_min", "send",
	"sendto", "setenv", "setjmp", "setlocale", "setsockopt", "setvbuf", "sin",
	"sinf", "sinh", "snprintf", "socket", "sprintf", "sqrt", "sqrtf", "srand48",
	"sscanf", "stat", "strcasecmp", "strcasestr", "strcat", "strchr", "strcmp",
	"strcoll", "strcpy", "strcspn", "strdup", "strerror", "strftime", "strlen",
	"strncasecmp", "strncat", "strncmp", "strncpy", "strpbrk", "strrchr",
	"strstr", "strtod", "strtol", "strtoul", "strxfrm", "sysconf", "tan",
	"tanf", "tanh", "time", "tolower", "toupper", "towlower", "towupper",
	"ungetc", "ungetwc", "usleep", "vfprintf", "vprintf", "vsnprintf",
	"vsprintf", "vswprintf", "wcrtomb", "wcscmp", "wcscoll", "wcsftime",
	"wcslen", "wcsncpy", "wcsxfrm", "wctob", "wctype", "wmemchr", "wmemcmp",
	"wmemcpy", "wmemmove", "wmemset", "write", "writev",
}

func TestTable_CoversImports(t *testing.T) {
	r := newRuntime(t, testConfig(t), newFakeLoader())
	var missing []string
	for _, name := range importedSymbols {
		if _, ok := r.Table().Lookup(name); !ok {
			missing = append(missing, name)
		}
	}
	sort.Strings(missing)
	if len(missing) > 0 {
		t.Fatalf("%d imports unresolved: %v", len(missing), missing)
	}
}
