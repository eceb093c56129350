package postgres

// ══════════════════════════════════════════════════════════════════════════════
// MIGRATION 001: CORE SCHEMA
// ══════════════════════════════════════════════════════════════════════════════

const migration001 = `
-- Migration: Create classes, students, assignments and evaluations
-- Version: 001

CREATE TABLE IF NOT EXISTS classes (
    id TEXT PRIMARY KEY,
    name VARCHAR(120) NOT NULL,
    instructor_id TEXT NOT NULL,
    created_at TIMESTAMP WITH TIME ZONE NOT NULL DEFAULT NOW(),
    updated_at TIMESTAMP WITH TIME ZONE NOT NULL DEFAULT NOW()
);

-- A student belongs to at most one class; the roster is derived from class_id.
CREATE TABLE IF NOT EXISTS students (
    id TEXT PRIMARY KEY,
    name VARCHAR(120) NOT NULL,
    email VARCHAR(254) NOT NULL UNIQUE,
    class_id TEXT NULL REFERENCES classes(id) ON DELETE SET NULL,
    created_at TIMESTAMP WITH TIME ZONE NOT NULL DEFAULT NOW(),
    updated_at TIMESTAMP WITH TIME ZONE NOT NULL DEFAULT NOW()
);

CREATE INDEX IF NOT EXISTS idx_students_class_id ON students(class_id);

-- media_geral is derived from evaluations and written only by recomputation.
CREATE TABLE IF NOT EXISTS assignments (
    id TEXT PRIMARY KEY,
    name VARCHAR(200) NOT NULL,
    class_id TEXT NOT NULL REFERENCES classes(id) ON DELETE CASCADE,
    rubric JSONB NOT NULL DEFAULT '{}'::jsonb,
    start_date TIMESTAMP WITH TIME ZONE NULL,
    end_date TIMESTAMP WITH TIME ZONE NULL,
    media_geral DOUBLE PRECISION NULL,
    created_at TIMESTAMP WITH TIME ZONE NOT NULL DEFAULT NOW(),
    updated_at TIMESTAMP WITH TIME ZONE NOT NULL DEFAULT NOW(),

    CONSTRAINT valid_dates CHECK (start_date IS NULL OR end_date IS NULL OR end_date >= start_date)
);

CREATE INDEX IF NOT EXISTS idx_assignments_class_id ON assignments(class_id);

-- payload is kept as text so that malformed documents survive and score 0.
CREATE TABLE IF NOT EXISTS evaluations (
    id TEXT PRIMARY KEY,
    assignment_id TEXT NOT NULL REFERENCES assignments(id) ON DELETE CASCADE,
    evaluator_student_id TEXT NULL,
    evaluator_instructor_id TEXT NULL,
    evaluated_student_id TEXT NOT NULL,
    payload TEXT NOT NULL,
    file_grades JSONB NULL,
    created_at TIMESTAMP WITH TIME ZONE NOT NULL DEFAULT NOW(),
    updated_at TIMESTAMP WITH TIME ZONE NOT NULL DEFAULT NOW(),

    CONSTRAINT single_evaluator CHECK ((evaluator_student_id IS NULL) <> (evaluator_instructor_id IS NULL))
);
`

// ══════════════════════════════════════════════════════════════════════════════
// MIGRATION 002: EVALUATION INDEXES
// ══════════════════════════════════════════════════════════════════════════════

const migration002 = `
-- Recomputation reads all evaluations of one assignment; the roster cascade
-- deletes by evaluator and by evaluated student.
CREATE INDEX IF NOT EXISTS idx_evaluations_assignment_id ON evaluations(assignment_id);
CREATE INDEX IF NOT EXISTS idx_evaluations_evaluator_student ON evaluations(evaluator_student_id) WHERE evaluator_student_id IS NOT NULL;
CREATE INDEX IF NOT EXISTS idx_evaluations_evaluated_student ON evaluations(evaluated_student_id);
CREATE INDEX IF NOT EXISTS idx_evaluations_assignment_evaluated ON evaluations(assignment_id, evaluated_student_id);
`
